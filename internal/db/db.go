package db

import (
	"fmt"

	"garantio/internal/alert"
	"garantio/internal/auth"
	"garantio/internal/jobs"
	"garantio/internal/warranty"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	// Tables
	if err := gdb.AutoMigrate(
		&auth.User{},
		&warranty.Article{},
		&warranty.Warranty{},
		&alert.Alert{},
		&jobs.Job{},
	); err != nil {
		return err
	}

	// One active alert per (warranty, kind): two racing schedule calls
	// cannot both insert. Partial so CANCELLED/SENT/FAILED history keeps.
	if err := gdb.Exec(`
create unique index if not exists uq_alerts_active_kind
on alerts(warranty_id, kind)
where status = 'SCHEDULED';
`).Error; err != nil {
		return err
	}

	// One live job per key: dedup must not be poisoned by CANCELLED or
	// FAILED history rows, or a cancel-then-reschedule that regenerates
	// a prior key would silently lose the reminder.
	if err := gdb.Exec(`
create unique index if not exists uq_jobs_live_key
on jobs(job_key)
where status in ('PENDING', 'RUNNING');
`).Error; err != nil {
		return err
	}

	// Helpful indexes
	stmts := []string{
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
		`create index if not exists idx_alerts_owner_status on alerts(user_id, status);`,
		`create index if not exists idx_alerts_warranty_status on alerts(warranty_id, status);`,
		`create index if not exists idx_warranties_owner on warranties(user_id, created_at desc);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
