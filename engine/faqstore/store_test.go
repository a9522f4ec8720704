package faqstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/anarkh-ai/faq-retrieval/engine/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, nil), mock
}

func TestAll_FiltersAndOrders(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "question", "answer"}).
		AddRow("1", "如何维修电脑？", "找售后人员进行维修").
		AddRow("2", "how to reset password", "contact the admin")
	mock.ExpectQuery(regexp.QuoteMeta(selectAll)).WillReturnRows(rows)

	faqs, err := s.All(context.Background())
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(faqs) != 2 {
		t.Fatalf("expected 2 faqs, got %d", len(faqs))
	}
	if faqs[0].ID != "1" || faqs[0].Question != "如何维修电脑？" {
		t.Fatalf("unexpected first row: %+v", faqs[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAll_QueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectAll)).WillReturnError(errors.New("server gone"))

	if _, err := s.All(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestGet_Found(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "question", "answer"}).AddRow("faq-7", "q", "a")
	mock.ExpectQuery(regexp.QuoteMeta(selectByID)).WithArgs("faq-7").WillReturnRows(rows)

	f, err := s.Get(context.Background(), "faq-7")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if f == nil || f.ID != "faq-7" {
		t.Fatalf("unexpected faq: %+v", f)
	}
}

func TestGet_Absent(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectByID)).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "question", "answer"}))

	f, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if f != nil {
		t.Fatalf("expected nil for absent id, got %+v", f)
	}
}

func TestUpsert(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(upsertOne)).
		WithArgs("1", "q", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Upsert(context.Background(), domain.FAQ{ID: "1", Question: "q", Answer: "a"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpsert_SameIDTwiceLastWriterWins(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(upsertOne)).
		WithArgs("1", "q1", "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Second write hits the ON DUPLICATE KEY path: two affected rows in MySQL.
	mock.ExpectExec(regexp.QuoteMeta(upsertOne)).
		WithArgs("1", "q2", "a2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	ctx := context.Background()
	if err := s.Upsert(ctx, domain.FAQ{ID: "1", Question: "q1", Answer: "a1"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.Upsert(ctx, domain.FAQ{ID: "1", Question: "q2", Answer: "a2"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCount(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(countAll)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 42 {
		t.Fatalf("expected 42, got %d", n)
	}
}

func TestMigrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS faq").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
}

func TestPing_Unavailable(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	s := NewWithDB(db, nil)
	err = s.Ping(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
