package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/maauso/silencecut/internal/timeline"
)

// Compile-time check that SQLRepository implements Repository.
var _ Repository = (*SQLRepository)(nil)

// jobRecord is the persisted form of a Job. Interval lists are stored as
// JSON text columns.
type jobRecord struct {
	ID          string  `gorm:"type:varchar(64);primaryKey"`
	Status      string  `gorm:"type:text;not null;index"`
	Stage       string  `gorm:"type:text"`
	Progress    float64 `gorm:"not null"`
	Error       string  `gorm:"type:text"`
	SourcePath  string  `gorm:"type:text;not null"`
	OutputPath  string  `gorm:"type:text"`
	Params      string  `gorm:"type:text"`
	Codec       string  `gorm:"type:text"`
	DurationMs  int64
	Silences    string `gorm:"type:text"`
	Keeps       string `gorm:"type:text"`
	Segments    int
	PushToS3    bool
	VideoURL    string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

func (jobRecord) TableName() string { return "cut_jobs" }

// SQLRepository persists jobs in a SQLite database through gorm.
type SQLRepository struct {
	db *gorm.DB
}

// OpenSQLRepository opens (or creates) the SQLite database at path and
// migrates the job table. Use ":memory:" for a throwaway database.
func OpenSQLRepository(path string) (*SQLRepository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	return NewSQLRepository(db)
}

// NewSQLRepository wraps an existing gorm handle and migrates the job table.
func NewSQLRepository(db *gorm.DB) (*SQLRepository, error) {
	if err := db.AutoMigrate(&jobRecord{}); err != nil {
		return nil, fmt.Errorf("migrate job table: %w", err)
	}
	return &SQLRepository{db: db}, nil
}

// Save inserts or updates job.
func (r *SQLRepository) Save(ctx context.Context, job *Job) error {
	rec, err := toRecord(job.Clone())
	if err != nil {
		return err
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// FindByID retrieves a job by its ID.
func (r *SQLRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	var rec jobRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return fromRecord(rec)
}

// List returns all jobs, newest first.
func (r *SQLRepository) List(ctx context.Context) ([]*Job, error) {
	var recs []jobRecord
	if err := r.db.WithContext(ctx).Order("created_at desc, id desc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]*Job, 0, len(recs))
	for _, rec := range recs {
		j, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// Delete removes a job.
func (r *SQLRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&jobRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Close releases the underlying database connection.
func (r *SQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(j *Job) (jobRecord, error) {
	params, err := json.Marshal(j.Params)
	if err != nil {
		return jobRecord{}, fmt.Errorf("encode params: %w", err)
	}
	silences, err := encodeList(j.Silences)
	if err != nil {
		return jobRecord{}, err
	}
	keeps, err := encodeList(j.Keeps)
	if err != nil {
		return jobRecord{}, err
	}
	return jobRecord{
		ID:          j.ID,
		Status:      string(j.Status),
		Stage:       string(j.Stage),
		Progress:    j.Progress,
		Error:       j.Error,
		SourcePath:  j.SourcePath,
		OutputPath:  j.OutputPath,
		Params:      string(params),
		Codec:       j.Codec,
		DurationMs:  j.SourceDuration.Milliseconds(),
		Silences:    silences,
		Keeps:       keeps,
		Segments:    j.SegmentCount,
		PushToS3:    j.PushToS3,
		VideoURL:    j.VideoURL,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}, nil
}

func fromRecord(rec jobRecord) (*Job, error) {
	j := &Job{
		ID:             rec.ID,
		Status:         Status(rec.Status),
		Stage:          Stage(rec.Stage),
		Progress:       rec.Progress,
		Error:          rec.Error,
		SourcePath:     rec.SourcePath,
		OutputPath:     rec.OutputPath,
		Codec:          rec.Codec,
		SourceDuration: time.Duration(rec.DurationMs) * time.Millisecond,
		SegmentCount:   rec.Segments,
		PushToS3:       rec.PushToS3,
		VideoURL:       rec.VideoURL,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		StartedAt:      rec.StartedAt,
		CompletedAt:    rec.CompletedAt,
	}
	if rec.Params != "" {
		if err := json.Unmarshal([]byte(rec.Params), &j.Params); err != nil {
			return nil, fmt.Errorf("decode params of job %s: %w", rec.ID, err)
		}
	}
	var err error
	if j.Silences, err = decodeList(rec.Silences); err != nil {
		return nil, fmt.Errorf("decode silences of job %s: %w", rec.ID, err)
	}
	if j.Keeps, err = decodeList(rec.Keeps); err != nil {
		return nil, fmt.Errorf("decode keeps of job %s: %w", rec.ID, err)
	}
	return j, nil
}

// spanRecord stores an interval in milliseconds.
type spanRecord struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

func encodeList(l timeline.List) (string, error) {
	if len(l) == 0 {
		return "", nil
	}
	spans := make([]spanRecord, len(l))
	for i, iv := range l {
		spans[i] = spanRecord{StartMs: iv.Start.Milliseconds(), EndMs: iv.End.Milliseconds()}
	}
	b, err := json.Marshal(spans)
	if err != nil {
		return "", fmt.Errorf("encode intervals: %w", err)
	}
	return string(b), nil
}

func decodeList(s string) (timeline.List, error) {
	if s == "" {
		return nil, nil
	}
	var spans []spanRecord
	if err := json.Unmarshal([]byte(s), &spans); err != nil {
		return nil, err
	}
	l := make(timeline.List, len(spans))
	for i, sp := range spans {
		l[i] = timeline.Interval{
			Start: time.Duration(sp.StartMs) * time.Millisecond,
			End:   time.Duration(sp.EndMs) * time.Millisecond,
		}
	}
	return l, nil
}
