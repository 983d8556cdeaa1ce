package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v4/stdlib" // Import Postgres driver.
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"gopkg.in/guregu/null.v3"
)

const (
	connectTries = 3
	connectWait  = 2 * time.Second
)

// ResultRow is a stored observation.
type ResultRow struct {
	bun.BaseModel `bun:"table:analysis_results"`

	ID         int64      `bun:"id,pk,autoincrement"`
	RunID      uuid.UUID  `bun:"run_id,type:uuid,notnull"`
	RunName    string     `bun:"run_name,notnull"`
	Analysis   string     `bun:"analysis,notnull"`
	Name       string     `bun:"name,notnull"`
	Experiment string     `bun:"experiment"`
	Checkpoint string     `bun:"checkpoint"`
	Metric     string     `bun:"metric"`
	Split      string     `bun:"split"`
	Iteration  int        `bun:"iteration"`
	Value      null.Float `bun:"value,type:double precision"`
	CreatedAt  time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// PostgresSink stores reports in the analysis_results table.
type PostgresSink struct {
	db *bun.DB
}

// ConnectPostgres connects to the database at url and creates the results table if needed.
func ConnectPostgres(ctx context.Context, url string) (*PostgresSink, error) {
	var (
		conn *sqlx.DB
		err  error
	)
	for try := 1; ; try++ {
		conn, err = sqlx.ConnectContext(ctx, "pgx", url)
		if err == nil {
			break
		}
		if try >= connectTries {
			return nil, errors.Wrapf(err, "could not connect to database after %v tries", try)
		}
		log.WithError(err).Warnf("failed to connect to postgres, trying again in %s", connectWait)
		time.Sleep(connectWait)
	}

	s := &PostgresSink{db: bun.NewDB(conn.DB, pgdialect.New())}
	if _, err := s.db.NewCreateTable().
		Model((*ResultRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		_ = s.Close()
		return nil, errors.Wrap(err, "creating analysis_results table")
	}
	return s, nil
}

// Write inserts every observation of r. Non-finite values are stored as NULL.
func (s *PostgresSink) Write(ctx context.Context, r *Report) error {
	rows := Rows(r)
	if len(rows) == 0 {
		return nil
	}
	if _, err := s.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return errors.Wrapf(err, "inserting %d results for run %s", len(rows), r.RunID)
	}
	log.WithFields(log.Fields{
		"run":  r.RunName,
		"rows": len(rows),
	}).Info("stored analysis results")
	return nil
}

// Results returns the stored rows of a run.
func (s *PostgresSink) Results(ctx context.Context, runID uuid.UUID) ([]ResultRow, error) {
	var rows []ResultRow
	if err := s.db.NewSelect().
		Model(&rows).
		Where("run_id = ?", runID).
		Order("id").
		Scan(ctx); err != nil {
		return nil, errors.Wrapf(err, "reading results for run %s", runID)
	}
	return rows, nil
}

// Close closes the database connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

// Rows converts the observations of r to table rows.
func Rows(r *Report) []ResultRow {
	if r.Len() == 0 {
		return nil
	}
	rows := make([]ResultRow, 0, len(r.Observations))
	for _, o := range r.Observations {
		rows = append(rows, ResultRow{
			RunID:      r.RunID,
			RunName:    r.RunName,
			Analysis:   o.Analysis,
			Name:       o.Name,
			Experiment: o.Experiment,
			Checkpoint: o.Checkpoint,
			Metric:     o.Metric,
			Split:      o.Split,
			Iteration:  o.Iteration,
			Value:      null.NewFloat(o.Value, Finite(o.Value)),
		})
	}
	return rows
}
