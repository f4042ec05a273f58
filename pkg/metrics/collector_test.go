package metrics_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/solo/pkg/metrics"
)

var _ = Describe("Collector", func() {
	var c *metrics.Collector

	BeforeEach(func() {
		c = metrics.NewCollector()
	})

	It("starts empty", func() {
		snap := c.Snapshot()
		Expect(snap.TotalSessions).To(BeZero())
		Expect(snap.ActiveSessions).To(BeZero())
		Expect(snap.ChunksGenerated).To(BeZero())
		Expect(snap.ChunksPerSecond).To(BeZero())
		Expect(snap.AvgWaitMs).To(BeZero())
	})

	It("tracks active sessions and outcomes", func() {
		doneA := c.SessionStart()
		doneB := c.SessionStart()
		doneC := c.SessionStart()
		Expect(c.Snapshot().ActiveSessions).To(Equal(int64(3)))

		doneA(metrics.Completed)
		doneB(metrics.Cancelled)
		doneC(metrics.Failed)

		snap := c.Snapshot()
		Expect(snap.TotalSessions).To(Equal(int64(3)))
		Expect(snap.ActiveSessions).To(BeZero())
		Expect(snap.CompletedSessions).To(Equal(int64(1)))
		Expect(snap.CancelledSessions).To(Equal(int64(1)))
		Expect(snap.FailedSessions).To(Equal(int64(1)))
	})

	It("is safe for concurrent sessions", func() {
		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				done := c.SessionStart()
				c.RecordChunks(2, time.Millisecond)
				done(metrics.Completed)
			}()
		}
		wg.Wait()

		snap := c.Snapshot()
		Expect(snap.TotalSessions).To(Equal(int64(50)))
		Expect(snap.CompletedSessions).To(Equal(int64(50)))
		Expect(snap.ChunksGenerated).To(Equal(int64(100)))
	})

	It("averages wait and time-to-first-chunk samples", func() {
		c.RecordWait(10 * time.Millisecond)
		c.RecordWait(30 * time.Millisecond)
		c.RecordChunks(1, 4*time.Millisecond)
		c.RecordChunks(1, 0)
		c.RecordChunks(1, 8*time.Millisecond)

		snap := c.Snapshot()
		Expect(snap.AvgWaitMs).To(BeNumerically("~", 20, 0.001))
		Expect(snap.AvgTTFTMs).To(BeNumerically("~", 6, 0.001))
	})

	It("ignores empty chunk batches", func() {
		c.RecordChunks(0, time.Second)
		Expect(c.Snapshot().ChunksGenerated).To(BeZero())
		Expect(c.Snapshot().AvgTTFTMs).To(BeZero())
	})

	Describe("chunk rate", func() {
		var now time.Time

		BeforeEach(func() {
			now = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			c.SetClock(func() time.Time { return now })
		})

		It("computes chunks per second over the rolling window", func() {
			c.RecordChunks(10, 0)
			now = now.Add(2 * time.Second)
			c.RecordChunks(10, 0)

			Expect(c.Snapshot().ChunksPerSecond).To(BeNumerically("~", 10, 0.001))
		})

		It("decays to zero once the window has passed", func() {
			c.RecordChunks(10, 0)
			now = now.Add(time.Second)
			c.RecordChunks(10, 0)
			now = now.Add(time.Minute)

			snap := c.Snapshot()
			Expect(snap.ChunksPerSecond).To(BeZero())
			Expect(snap.ChunksGenerated).To(Equal(int64(20)))
		})
	})
})
