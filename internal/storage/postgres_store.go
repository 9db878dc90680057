package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type linkRow struct {
	ID          string    `gorm:"primaryKey;size:36"`
	Seq         int64     `gorm:"column:seq;autoIncrement;uniqueIndex"`
	URL         string    `gorm:"column:url;uniqueIndex;not null"`
	SubmittedBy string    `gorm:"column:submitted_by"`
	Source      string    `gorm:"column:source"`
	CreatedAt   time.Time `gorm:"column:created_at;index"`
	Processed   bool      `gorm:"column:processed;index;not null;default:false"`
	ProcessedAt *time.Time
}

func (linkRow) TableName() string { return "links" }

type scholarshipRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Name         string `gorm:"not null"`
	NameKey      string `gorm:"column:name_key;uniqueIndex;not null"`
	Deadline     string
	Amount       string
	Description  string
	Requirements []byte `gorm:"type:jsonb"`
	Link         string
	CreatedAt    time.Time
}

func (scholarshipRow) TableName() string { return "scholarships" }

// postgresStore implements Store on gorm with the postgres driver. The unique
// indexes on url and name_key carry the dedup guarantee.
type postgresStore struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

func openPostgres(dsn string, opts Options) (*postgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&linkRow{}, &scholarshipRow{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return newPostgresStore(db, opts), nil
}

// newPostgresStore expects the schema to be migrated already.
func newPostgresStore(db *gorm.DB, opts Options) *postgresStore {
	opts = normalizeOptions(opts)
	return &postgresStore{db: db, loc: opts.Location, now: time.Now}
}

func (p *postgresStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *postgresStore) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return domain.NewStorageError("ping", err)
	}
	return domain.NewStorageError("ping", sqlDB.PingContext(ctx))
}

func (p *postgresStore) Store(ctx context.Context, rawURL, actor, sourceContext string) (domain.StoreResult, error) {
	link, rejected := newLink(rawURL, actor, sourceContext, p.now())
	if rejected != nil {
		return *rejected, nil
	}

	row := toLinkRow(link)
	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return domain.StoreResult{OK: false, URL: link.URL, Reason: domain.ReasonDuplicate}, nil
		}
		return domain.StoreResult{}, domain.NewStorageError("store link", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.StoreResult{OK: false, URL: link.URL, Reason: domain.ReasonDuplicate}, nil
	}
	return domain.StoreResult{OK: true, LinkID: link.ID, URL: link.URL}, nil
}

func (p *postgresStore) ListUnprocessed(ctx context.Context, limit int) ([]domain.SubmittedLink, error) {
	limit = clampLimit(limit)
	if limit == 0 {
		return nil, nil
	}
	var rows []linkRow
	err := p.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("created_at ASC").
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, domain.NewStorageError("list unprocessed", err)
	}
	out := make([]domain.SubmittedLink, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (p *postgresStore) MarkProcessed(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := p.now().UTC()
	res := p.db.WithContext(ctx).
		Model(&linkRow{}).
		Where("id IN ? AND processed = ?", ids, false).
		Updates(map[string]any{"processed": true, "processed_at": now})
	if res.Error != nil {
		return 0, domain.NewStorageError("mark processed", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (p *postgresStore) GetLink(ctx context.Context, id string) (domain.SubmittedLink, error) {
	var row linkRow
	err := p.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SubmittedLink{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SubmittedLink{}, domain.NewStorageError("get link", err)
	}
	return row.toDomain(), nil
}

func (p *postgresStore) Upsert(ctx context.Context, rec domain.ScholarshipRecord) (domain.UpsertResult, error) {
	rec, err := prepareRecord(rec, p.now())
	if err != nil {
		return domain.UpsertResult{Status: domain.UpsertError, Name: rec.Name, Reason: err.Error()}, nil
	}
	row, err := toScholarshipRow(rec)
	if err != nil {
		return domain.UpsertResult{Status: domain.UpsertError, Name: rec.Name, Reason: err.Error()}, nil
	}

	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name_key"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return domain.UpsertResult{Status: domain.UpsertSkipped, Name: rec.Name, Reason: domain.ReasonAlreadyExists}, nil
		}
		return domain.UpsertResult{}, domain.NewStorageError("upsert scholarship", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.UpsertResult{Status: domain.UpsertSkipped, Name: rec.Name, Reason: domain.ReasonAlreadyExists}, nil
	}
	return domain.UpsertResult{Status: domain.UpsertAdded, ID: rec.ID, Name: rec.Name}, nil
}

func (p *postgresStore) Search(ctx context.Context, q domain.SearchQuery) ([]domain.ScholarshipRecord, error) {
	needle, minAmount, useAmount := compileQuery(q)

	tx := p.db.WithContext(ctx).Model(&scholarshipRow{}).Order("name_key ASC").Order("name ASC")
	if needle != "" {
		tx = tx.Where("name_key LIKE ?", "%"+escapeLike(needle)+"%")
	}
	var rows []scholarshipRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, domain.NewStorageError("search scholarships", err)
	}

	out := make([]domain.ScholarshipRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toDomain()
		if err != nil {
			return nil, domain.NewStorageError("search scholarships", err)
		}
		if matchesQuery(rec, needle, minAmount, useAmount) {
			out = append(out, rec)
		}
	}
	return applyLimit(out, q.Limit), nil
}

// RemoveExpired evaluates deadlines in Go because they are free text.
func (p *postgresStore) RemoveExpired(ctx context.Context, now time.Time) (domain.RemoveResult, error) {
	var removed []domain.ScholarshipRecord
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []scholarshipRow
		if err := tx.Where("deadline <> ''").Find(&rows).Error; err != nil {
			return err
		}
		var ids []string
		for _, r := range rows {
			if !domain.IsExpired(r.Deadline, now, p.loc) {
				continue
			}
			rec, err := r.toDomain()
			if err != nil {
				return err
			}
			ids = append(ids, r.ID)
			removed = append(removed, rec)
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Where("id IN ?", ids).Delete(&scholarshipRow{}).Error
	})
	if err != nil {
		return domain.RemoveResult{}, domain.NewStorageError("remove expired", err)
	}
	return domain.RemoveResult{RemovedCount: len(removed), Removed: removed}, nil
}

func (p *postgresStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := p.db.WithContext(ctx).Model(&scholarshipRow{}).Count(&n).Error; err != nil {
		return 0, domain.NewStorageError("count scholarships", err)
	}
	return int(n), nil
}

func toLinkRow(l domain.SubmittedLink) linkRow {
	row := linkRow{
		ID:          l.ID,
		URL:         l.URL,
		SubmittedBy: l.SubmittedBy,
		Source:      l.SourceContext,
		CreatedAt:   l.CreatedAt,
		Processed:   l.Processed,
	}
	if !l.ProcessedAt.IsZero() {
		t := l.ProcessedAt
		row.ProcessedAt = &t
	}
	return row
}

func (r linkRow) toDomain() domain.SubmittedLink {
	l := domain.SubmittedLink{
		ID:            r.ID,
		URL:           r.URL,
		SubmittedBy:   r.SubmittedBy,
		SourceContext: r.Source,
		CreatedAt:     r.CreatedAt,
		Processed:     r.Processed,
	}
	if r.ProcessedAt != nil {
		l.ProcessedAt = *r.ProcessedAt
	}
	return l
}

func toScholarshipRow(rec domain.ScholarshipRecord) (scholarshipRow, error) {
	reqs := []string(rec.Requirements)
	if reqs == nil {
		reqs = []string{}
	}
	raw, err := json.Marshal(reqs)
	if err != nil {
		return scholarshipRow{}, fmt.Errorf("encode requirements: %w", err)
	}
	return scholarshipRow{
		ID:           rec.ID,
		Name:         rec.Name,
		NameKey:      rec.NameKey(),
		Deadline:     rec.Deadline,
		Amount:       rec.Amount,
		Description:  rec.Description,
		Requirements: raw,
		Link:         rec.SourceLink,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

func (r scholarshipRow) toDomain() (domain.ScholarshipRecord, error) {
	rec := domain.ScholarshipRecord{
		ID:          r.ID,
		Name:        r.Name,
		Deadline:    r.Deadline,
		Amount:      r.Amount,
		Description: r.Description,
		SourceLink:  r.Link,
		CreatedAt:   r.CreatedAt,
	}
	if len(r.Requirements) > 0 {
		if err := json.Unmarshal(r.Requirements, &rec.Requirements); err != nil {
			return rec, fmt.Errorf("decode requirements of %q: %w", r.ID, err)
		}
	}
	return rec, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
