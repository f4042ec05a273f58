package ledger_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/solo/pkg/ledger"
)

var base = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func record(id, outcome string, offset time.Duration) *ledger.Record {
	return &ledger.Record{
		ID:          id,
		Kind:        ledger.KindChat,
		Stream:      true,
		Outcome:     outcome,
		Engine:      "scripted",
		PromptChars: 120,
		OutputChars: 42,
		Chunks:      7,
		Waited:      150 * time.Millisecond,
		Elapsed:     2 * time.Second,
		CreatedAt:   base.Add(offset),
	}
}

// recorderBehaviors runs the Recorder contract against any implementation.
func recorderBehaviors(newRecorder func() ledger.Recorder) {
	var (
		rec ledger.Recorder
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		rec = newRecorder()
	})

	AfterEach(func() {
		Expect(rec.Close()).To(Succeed())
	})

	Describe("Put and Get", func() {
		It("round-trips a record", func() {
			r := record("a", ledger.OutcomeCompleted, 0)
			Expect(rec.Put(ctx, r)).To(Succeed())

			got, err := rec.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("a"))
			Expect(got.Kind).To(Equal(ledger.KindChat))
			Expect(got.Stream).To(BeTrue())
			Expect(got.Outcome).To(Equal(ledger.OutcomeCompleted))
			Expect(got.Engine).To(Equal("scripted"))
			Expect(got.PromptChars).To(Equal(120))
			Expect(got.OutputChars).To(Equal(42))
			Expect(got.Chunks).To(Equal(7))
			Expect(got.Waited).To(Equal(150 * time.Millisecond))
			Expect(got.Elapsed).To(Equal(2 * time.Second))
			Expect(got.CreatedAt.Equal(base)).To(BeTrue())
		})

		It("replaces a record stored under the same id", func() {
			Expect(rec.Put(ctx, record("a", ledger.OutcomeCompleted, 0))).To(Succeed())
			Expect(rec.Put(ctx, record("a", ledger.OutcomeFailed, 0))).To(Succeed())

			got, err := rec.Get(ctx, "a")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Outcome).To(Equal(ledger.OutcomeFailed))
		})

		It("returns ErrNotFound for unknown ids", func() {
			_, err := rec.Get(ctx, "missing")
			Expect(err).To(MatchError(ledger.ErrNotFound{ID: "missing"}))
		})
	})

	Describe("List", func() {
		BeforeEach(func() {
			Expect(rec.Put(ctx, record("old", ledger.OutcomeCompleted, 0))).To(Succeed())
			Expect(rec.Put(ctx, record("mid", ledger.OutcomeCancelled, time.Minute))).To(Succeed())
			Expect(rec.Put(ctx, record("new", ledger.OutcomeCompleted, 2*time.Minute))).To(Succeed())
		})

		ids := func(records []*ledger.Record) []string {
			out := make([]string, 0, len(records))
			for _, r := range records {
				out = append(out, r.ID)
			}
			return out
		}

		It("returns records newest first", func() {
			got, err := rec.List(ctx, ledger.ListOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(got)).To(Equal([]string{"new", "mid", "old"}))
		})

		It("applies the limit", func() {
			got, err := rec.List(ctx, ledger.ListOptions{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(got)).To(Equal([]string{"new", "mid"}))
		})

		It("filters by outcome", func() {
			got, err := rec.List(ctx, ledger.ListOptions{Outcome: ledger.OutcomeCompleted})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(got)).To(Equal([]string{"new", "old"}))
		})
	})

	Describe("Stats", func() {
		It("is zero for an empty ledger", func() {
			stats, err := rec.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(*stats).To(Equal(ledger.Stats{}))
		})

		It("counts by outcome", func() {
			Expect(rec.Put(ctx, record("a", ledger.OutcomeCompleted, 0))).To(Succeed())
			Expect(rec.Put(ctx, record("b", ledger.OutcomeCompleted, 0))).To(Succeed())
			Expect(rec.Put(ctx, record("c", ledger.OutcomeCancelled, 0))).To(Succeed())
			Expect(rec.Put(ctx, record("d", ledger.OutcomeFailed, 0))).To(Succeed())

			stats, err := rec.Stats(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(*stats).To(Equal(ledger.Stats{Total: 4, Completed: 2, Cancelled: 1, Failed: 1}))
		})
	})
}

var _ = Describe("MemoryRecorder", func() {
	recorderBehaviors(func() ledger.Recorder {
		return ledger.NewMemoryRecorder()
	})

	It("does not alias stored records", func() {
		ctx := context.Background()
		rec := ledger.NewMemoryRecorder()
		r := record("a", ledger.OutcomeCompleted, 0)
		Expect(rec.Put(ctx, r)).To(Succeed())

		r.Outcome = ledger.OutcomeFailed
		got, err := rec.Get(ctx, "a")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Outcome).To(Equal(ledger.OutcomeCompleted))
	})
})

var _ = Describe("SQLiteRecorder", func() {
	recorderBehaviors(func() ledger.Recorder {
		rec, err := ledger.NewSQLiteRecorder(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return rec
	})

	It("creates the database file and its parent directory", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "nested", "ledger.db")

		rec, err := ledger.NewSQLiteRecorder(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer rec.Close()

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("persists records across reopen", func() {
		ctx := context.Background()
		dbPath := filepath.Join(GinkgoT().TempDir(), "ledger.db")

		rec, err := ledger.NewSQLiteRecorder(dbPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Put(ctx, record("kept", ledger.OutcomeCompleted, 0))).To(Succeed())
		Expect(rec.Close()).To(Succeed())

		rec, err = ledger.NewSQLiteRecorder(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer rec.Close()

		got, err := rec.Get(ctx, "kept")
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Outcome).To(Equal(ledger.OutcomeCompleted))
	})
})
