package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fitbot/fitbot-backend/internal/domain"
)

// test DB helper
func newMsgRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("msg_repo_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestCreateMessage_InsertsAndSetsFields(t *testing.T) {
	db := newMsgRepoDB(t, &domain.Conversation{}, &domain.Message{})

	// seed conversation in case you enforce FK in your schema
	if err := db.Create(&domain.Conversation{ID: "c1", UserID: "u1", Title: "t"}).Error; err != nil {
		t.Fatalf("seed conversation: %v", err)
	}

	msg, err := CreateMessage(db, "c1", domain.RoleAssistant, "hola")
	if err != nil {
		t.Fatalf("CreateMessage error: %v", err)
	}
	if msg.ID == "" || msg.ConversationID != "c1" || msg.Role != domain.RoleAssistant || msg.Content != "hola" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.CreatedAt.IsZero() || time.Since(msg.CreatedAt) > time.Minute {
		t.Fatalf("CreatedAt not set reasonably: %v", msg.CreatedAt)
	}

	// read it back
	var got domain.Message
	if err := db.Where("id = ?", msg.ID).First(&got).Error; err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.ID != msg.ID {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", got, msg)
	}
}

func TestListMessages_OrderAndLimit(t *testing.T) {
	db := newMsgRepoDB(t, &domain.Message{})

	// craft deterministic ordering:
	// same CreatedAt for first two; ID "a" should come before "b"
	t0 := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(1 * time.Second)

	mA := domain.Message{ID: "a", ConversationID: "c2", Role: domain.RoleUser, Content: "x", CreatedAt: t0}
	mB := domain.Message{ID: "b", ConversationID: "c2", Role: domain.RoleUser, Content: "y", CreatedAt: t0}
	mZ := domain.Message{ID: "z", ConversationID: "c2", Role: domain.RoleAssistant, Content: "z", CreatedAt: t1}
	if err := db.Create(&mB).Error; err != nil { // insert out of order on purpose
		t.Fatalf("seed mB: %v", err)
	}
	if err := db.Create(&mA).Error; err != nil {
		t.Fatalf("seed mA: %v", err)
	}
	if err := db.Create(&mZ).Error; err != nil {
		t.Fatalf("seed mZ: %v", err)
	}

	// limit <= 0 → all
	all, err := ListMessages(db, "c2", 0)
	if err != nil {
		t.Fatalf("ListMessages(all) error: %v", err)
	}
	if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "z" {
		t.Fatalf("unexpected order/all: %+v", all)
	}

	// limit > 0
	top2, err := ListMessages(db, "c2", 2)
	if err != nil {
		t.Fatalf("ListMessages(limit) error: %v", err)
	}
	if len(top2) != 2 || top2[0].ID != "a" || top2[1].ID != "b" {
		t.Fatalf("unexpected order/limit: %+v", top2)
	}
}

func TestListRecentMessages_TailInChronologicalOrder(t *testing.T) {
	db := newMsgRepoDB(t, &domain.Message{})

	// five messages with ascending CreatedAt: a,b,c,d,e
	base := time.Date(2025, 7, 1, 10, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m := domain.Message{
			ID:             string(rune('a' + i)),
			ConversationID: "c5",
			Role:           domain.RoleUser,
			Content:        "x",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	// Asking for the 3 most recent must return c,d,e oldest first.
	tail, err := ListRecentMessages(db, "c5", 3)
	if err != nil {
		t.Fatalf("ListRecentMessages error: %v", err)
	}
	if len(tail) != 3 || tail[0].ID != "c" || tail[1].ID != "d" || tail[2].ID != "e" {
		t.Fatalf("unexpected tail: %+v", tail)
	}

	// Fewer rows than limit: everything, still chronological.
	all, err := ListRecentMessages(db, "c5", 50)
	if err != nil {
		t.Fatalf("ListRecentMessages(all) error: %v", err)
	}
	if len(all) != 5 || all[0].ID != "a" || all[4].ID != "e" {
		t.Fatalf("unexpected full tail: %+v", all)
	}
}

func TestCountMessages_Error_NoTable(t *testing.T) {
	db := newMsgRepoDB(t /* no migration for Message */)
	if _, err := CountMessages(db, "cx"); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}
}

func TestCountMessages_Success(t *testing.T) {
	db := newMsgRepoDB(t, &domain.Message{})

	// two messages in cx, one in cy
	if err := db.Create(&domain.Message{ID: "m1", ConversationID: "cx", Role: domain.RoleUser, Content: "1"}).Error; err != nil {
		t.Fatalf("seed m1: %v", err)
	}
	if err := db.Create(&domain.Message{ID: "m2", ConversationID: "cx", Role: domain.RoleAssistant, Content: "2"}).Error; err != nil {
		t.Fatalf("seed m2: %v", err)
	}
	if err := db.Create(&domain.Message{ID: "m3", ConversationID: "cy", Role: domain.RoleUser, Content: "3"}).Error; err != nil {
		t.Fatalf("seed m3: %v", err)
	}

	total, err := CountMessages(db, "cx")
	if err != nil {
		t.Fatalf("CountMessages error: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2, got %d", total)
	}
}

func TestListMessagesPage_Pagination(t *testing.T) {
	db := newMsgRepoDB(t, &domain.Message{})

	// five messages with ascending CreatedAt + IDs
	base := time.Date(2025, 7, 1, 11, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		m := domain.Message{
			ID:             string(rune('a' + i - 1)),
			ConversationID: "c3",
			Role:           domain.RoleUser,
			Content:        "x",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := db.Create(&m).Error; err != nil {
			t.Fatalf("seed m%d: %v", i, err)
		}
	}

	out, err := ListMessagesPage(db, "c3", 1, 2) // expect 2nd and 3rd in order
	if err != nil {
		t.Fatalf("ListMessagesPage error: %v", err)
	}
	if len(out) != 2 || out[0].ID != "b" || out[1].ID != "c" {
		t.Fatalf("unexpected page slice: %+v", out)
	}
}

// sanity: the repository funcs accept a *gorm.DB that may have context/tx set;
// ensure they work with a context-scoped DB too
func TestRepoWithContextHandles(t *testing.T) {
	db := newMsgRepoDB(t, &domain.Message{})
	ctx := context.Background()
	tdb := db.WithContext(ctx)

	if _, err := CreateMessage(tdb, "cX", domain.RoleUser, "hello"); err != nil {
		t.Fatalf("CreateMessage with context: %v", err)
	}
	if _, err := ListMessages(tdb, "cX", 10); err != nil {
		t.Fatalf("ListMessages with context: %v", err)
	}
	if _, err := ListRecentMessages(tdb, "cX", 10); err != nil {
		t.Fatalf("ListRecentMessages with context: %v", err)
	}
	if _, err := CountMessages(tdb, "cX"); err != nil {
		t.Fatalf("CountMessages with context: %v", err)
	}
	if _, err := ListMessagesPage(tdb, "cX", 0, 1); err != nil {
		t.Fatalf("ListMessagesPage with context: %v", err)
	}
}
