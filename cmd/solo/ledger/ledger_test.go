package ledgercmder

import (
	"bytes"
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/solo/pkg/ledger"
)

var _ = Describe("Ledger Command", func() {
	var (
		ctx    context.Context
		dbPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		dbPath = filepath.Join(GinkgoT().TempDir(), "ledger.db")
	})

	seed := func(records ...*ledger.Record) {
		rec, err := ledger.NewSQLiteRecorder(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer rec.Close()
		for _, r := range records {
			Expect(rec.Put(ctx, r)).To(Succeed())
		}
	}

	execute := func(args ...string) (string, error) {
		cmd := NewLedgerCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--sqlite", dbPath}, args...))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	now := time.Now()

	It("lists sessions with a summary", func() {
		seed(
			&ledger.Record{ID: "aaaaaaaa-1111", Kind: ledger.KindChat, Stream: true, Outcome: ledger.OutcomeCompleted,
				Engine: "ollama/llama3.2", Chunks: 12, Elapsed: 1500 * time.Millisecond, CreatedAt: now},
			&ledger.Record{ID: "bbbbbbbb-2222", Kind: ledger.KindCompletion, Outcome: ledger.OutcomeCancelled,
				Engine: "ollama/llama3.2", CreatedAt: now.Add(-time.Minute)},
		)

		out, err := execute()
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("aaaaaaaa"))
		Expect(out).NotTo(ContainSubstring("aaaaaaaa-1111"))
		Expect(out).To(ContainSubstring("bbbbbbbb"))
		Expect(out).To(ContainSubstring("stream"))
		Expect(out).To(ContainSubstring("aggregate"))
		Expect(out).To(ContainSubstring("1.5s"))
		Expect(out).To(ContainSubstring("2 sessions: 1 completed, 1 cancelled, 0 failed"))
	})

	It("filters by outcome and limit", func() {
		seed(
			&ledger.Record{ID: "11111111", Kind: ledger.KindChat, Outcome: ledger.OutcomeFailed, CreatedAt: now},
			&ledger.Record{ID: "22222222", Kind: ledger.KindChat, Outcome: ledger.OutcomeFailed, CreatedAt: now.Add(-time.Second)},
			&ledger.Record{ID: "33333333", Kind: ledger.KindChat, Outcome: ledger.OutcomeCompleted, CreatedAt: now},
		)

		out, err := execute("--outcome", "failed", "--limit", "1")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("11111111"))
		Expect(out).NotTo(ContainSubstring("22222222"))
		Expect(out).NotTo(ContainSubstring("33333333"))
	})

	It("says so when nothing matches", func() {
		seed()

		out, err := execute("--outcome", "cancelled")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("No sessions recorded."))
	})

	It("rejects unknown outcomes", func() {
		_, err := execute("--outcome", "exploded")
		Expect(err).To(MatchError(ContainSubstring("unknown outcome")))
	})

	It("fails for a missing ledger", func() {
		_, err := execute("--sqlite", filepath.Join(GinkgoT().TempDir(), "missing.db"))
		Expect(err).To(MatchError(ContainSubstring("no ledger at")))
	})
})
