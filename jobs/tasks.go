package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeOverdueSweep refreshes the billing summary and logs invoices
	// that crossed their due date.
	TaskTypeOverdueSweep = "billing:overdue_sweep"
	// TaskTypeGuaranteeReminder logs guarantees retained long enough that
	// their release should be reviewed.
	TaskTypeGuaranteeReminder = "billing:guarantee_reminder"
)

// NewOverdueSweepTask constructs the sweep task. The sweep takes no
// parameters; it always covers the full outstanding set.
func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeOverdueSweep, nil)
}

// NewGuaranteeReminderTask constructs the reminder task.
func NewGuaranteeReminderTask() *asynq.Task {
	return asynq.NewTask(TaskTypeGuaranteeReminder, nil)
}
