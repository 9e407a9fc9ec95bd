// Package checkouts defines the equipment checkout payload for the approval
// workflow. An approved checkout is closed with MarkReturned, which stamps the
// return date; until then it reads as OVERDUE once its due date has passed.
package checkouts
