package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestScholarshipRowKeepsRequirements(t *testing.T) {
	rec := domain.ScholarshipRecord{
		ID:           "id-1",
		Name:         "ABC  Scholarship",
		Requirements: domain.Requirements{"GPA 3.0", "Essay"},
		SourceLink:   "https://example.edu/award",
	}
	row, err := toScholarshipRow(rec)
	if err != nil {
		t.Fatalf("toScholarshipRow: %v", err)
	}
	if row.NameKey != "abc scholarship" {
		t.Fatalf("unexpected name key %q", row.NameKey)
	}
	back, err := row.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if len(back.Requirements) != 2 || back.Requirements[1] != "Essay" || back.SourceLink != rec.SourceLink {
		t.Fatalf("unexpected record %+v", back)
	}
}

func TestLinkRowProcessedAt(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	row := toLinkRow(domain.SubmittedLink{ID: "l1", URL: "https://x.example", Processed: true, ProcessedAt: now})
	if row.ProcessedAt == nil || !row.ProcessedAt.Equal(now) {
		t.Fatalf("expected processed_at set, got %v", row.ProcessedAt)
	}
	if got := toLinkRow(domain.SubmittedLink{ID: "l2"}); got.ProcessedAt != nil {
		t.Fatalf("expected nil processed_at for pending link")
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Fatalf("escapeLike got %q", got)
	}
}

var scholarshipColumns = []string{"id", "name", "name_key", "deadline", "amount", "description", "requirements", "link", "created_at"}

func newMockPostgres(t *testing.T) (*postgresStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	store := newPostgresStore(db, Options{Location: time.UTC})
	store.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return store, mock
}

func checkExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}

func TestPostgresStoreReportsDuplicateOnConflict(t *testing.T) {
	store, mock := newMockPostgres(t)
	insert := regexp.QuoteMeta(`INSERT INTO "links"`) + `.*` + regexp.QuoteMeta(`ON CONFLICT ("url") DO NOTHING`)

	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(1))
	mock.ExpectQuery(insert).WillReturnRows(sqlmock.NewRows([]string{"seq"}))

	first, err := store.Store(context.Background(), "https://example.edu/award?utm_source=x", "alice", "cli")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !first.OK || first.LinkID == "" || first.URL != "https://example.edu/award" {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := store.Store(context.Background(), "https://example.edu/award", "bob", "cli")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if second.OK || second.Reason != domain.ReasonDuplicate {
		t.Fatalf("expected duplicate, got %+v", second)
	}
	checkExpectations(t, mock)
}

func TestPostgresStoreRejectsInvalidURLWithoutQuery(t *testing.T) {
	store, mock := newMockPostgres(t)
	res, err := store.Store(context.Background(), "not a url", "alice", "cli")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if res.OK {
		t.Fatalf("expected rejection, got %+v", res)
	}
	checkExpectations(t, mock)
}

func TestPostgresListUnprocessedOrdersByInsertion(t *testing.T) {
	store, mock := newMockPostgres(t)
	created := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "seq", "url", "submitted_by", "source", "created_at", "processed", "processed_at"}).
		AddRow("l1", 1, "https://a.example", "alice", "cli", created, false, nil).
		AddRow("l2", 2, "https://b.example", "bob", "cli", created, false, nil)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "links" WHERE processed = $1 ORDER BY created_at ASC,seq ASC`)).
		WillReturnRows(rows)

	links, err := store.ListUnprocessed(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListUnprocessed: %v", err)
	}
	if len(links) != 2 || links[0].ID != "l1" || links[1].ID != "l2" {
		t.Fatalf("unexpected links %+v", links)
	}
	if links[0].Processed || !links[0].ProcessedAt.IsZero() {
		t.Fatalf("pending link should not carry processed state: %+v", links[0])
	}
	checkExpectations(t, mock)
}

func TestPostgresMarkProcessedOnlyTouchesPendingRows(t *testing.T) {
	store, mock := newMockPostgres(t)
	update := regexp.QuoteMeta(`UPDATE "links" SET "processed"=$1,"processed_at"=$2 WHERE id IN ($3,$4) AND processed = $5`)
	mock.ExpectExec(update).
		WithArgs(true, sqlmock.AnyArg(), "l1", "l2", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).
		WithArgs(true, sqlmock.AnyArg(), "l1", "l2", false).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := store.MarkProcessed(context.Background(), []string{"l1", "l2"})
	if err != nil || n != 1 {
		t.Fatalf("MarkProcessed = %d, %v", n, err)
	}
	n, err = store.MarkProcessed(context.Background(), []string{"l1", "l2"})
	if err != nil || n != 0 {
		t.Fatalf("second MarkProcessed should be a no-op, got %d, %v", n, err)
	}
	checkExpectations(t, mock)
}

func TestPostgresGetLinkNotFound(t *testing.T) {
	store, mock := newMockPostgres(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "links" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := store.GetLink(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestPostgresUpsertSkipsKnownName(t *testing.T) {
	store, mock := newMockPostgres(t)
	insert := regexp.QuoteMeta(`INSERT INTO "scholarships"`) + `.*` + regexp.QuoteMeta(`ON CONFLICT ("name_key") DO NOTHING`)
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 0))

	rec := domain.ScholarshipRecord{Name: "Future Leaders Award", Deadline: "2030-01-01"}
	added, err := store.Upsert(context.Background(), rec)
	if err != nil || added.Status != domain.UpsertAdded || added.ID == "" {
		t.Fatalf("first upsert = %+v, %v", added, err)
	}
	rec.Name = "future  leaders award"
	skipped, err := store.Upsert(context.Background(), rec)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if skipped.Status != domain.UpsertSkipped || skipped.Reason != domain.ReasonAlreadyExists {
		t.Fatalf("expected skip, got %+v", skipped)
	}
	checkExpectations(t, mock)
}

func TestPostgresRemoveExpiredDeletesInTransaction(t *testing.T) {
	store, mock := newMockPostgres(t)
	created := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(scholarshipColumns).
		AddRow("s-old", "Old Award", "old award", "2019-05-01", "$100", "", []byte(`["Essay"]`), "https://x.example", created).
		AddRow("s-new", "New Award", "new award", "2099-05-01", "$100", "", []byte(`[]`), "https://y.example", created).
		AddRow("s-roll", "Rolling Award", "rolling award", "rolling", "$100", "", []byte(`[]`), "https://z.example", created)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "scholarships" WHERE deadline <> ''`)).WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "scholarships" WHERE id IN ($1)`)).
		WithArgs("s-old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := store.RemoveExpired(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("RemoveExpired: %v", err)
	}
	if res.RemovedCount != 1 || res.Removed[0].Name != "Old Award" || len(res.Removed[0].Requirements) != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	checkExpectations(t, mock)
}

func TestPostgresRemoveExpiredRollsBackOnFailure(t *testing.T) {
	store, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "scholarships"`)).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.RemoveExpired(context.Background(), time.Now())
	if !domain.IsStorageError(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestPostgresSearchFiltersByNameAndAmount(t *testing.T) {
	store, mock := newMockPostgres(t)
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(scholarshipColumns).
		AddRow("s1", "STEM Award", "stem award", "2030-01-01", "$5,000", "", []byte(`[]`), "https://a.example", created).
		AddRow("s2", "STEM Grant", "stem grant", "2030-01-01", "$500", "", []byte(`[]`), "https://b.example", created)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "scholarships" WHERE name_key LIKE $1 ORDER BY name_key ASC,name ASC`)).
		WithArgs("%stem%").
		WillReturnRows(rows)

	recs, err := store.Search(context.Background(), domain.SearchQuery{Name: " STEM ", MinAmount: "1000"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "s1" {
		t.Fatalf("unexpected records %+v", recs)
	}
	checkExpectations(t, mock)
}

func TestPostgresSearchReportsCorruptRequirements(t *testing.T) {
	store, mock := newMockPostgres(t)
	rows := sqlmock.NewRows(scholarshipColumns).
		AddRow("s1", "Broken Award", "broken award", "", "", "", []byte(`{not json`), "https://a.example", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "scholarships"`)).WillReturnRows(rows)

	_, err := store.Search(context.Background(), domain.SearchQuery{})
	if !domain.IsStorageError(err) {
		t.Fatalf("expected storage error for corrupt requirements, got %v", err)
	}
	checkExpectations(t, mock)
}
