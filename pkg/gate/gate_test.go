package gate_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/solo/pkg/gate"
)

var _ = Describe("Gate", func() {
	var g *gate.Gate

	BeforeEach(func() {
		g = gate.New()
	})

	Describe("TryAcquire", func() {
		It("grants the permit when free", func() {
			p, ok := g.TryAcquire()

			Expect(ok).To(BeTrue())
			Expect(p).NotTo(BeNil())
			Expect(g.Held()).To(BeTrue())
		})

		It("refuses while the permit is held", func() {
			_, ok := g.TryAcquire()
			Expect(ok).To(BeTrue())

			p, ok := g.TryAcquire()
			Expect(ok).To(BeFalse())
			Expect(p).To(BeNil())
		})

		It("grants again after release", func() {
			p, _ := g.TryAcquire()
			Expect(p.Release()).To(Succeed())
			Expect(g.Held()).To(BeFalse())

			_, ok := g.TryAcquire()
			Expect(ok).To(BeTrue())
		})
	})

	Describe("Release", func() {
		It("rejects a second release without freeing another holder's permit", func() {
			first, _ := g.TryAcquire()
			Expect(first.Release()).To(Succeed())

			second, ok := g.TryAcquire()
			Expect(ok).To(BeTrue())

			Expect(first.Release()).To(MatchError(gate.ErrReleased))
			Expect(g.Held()).To(BeTrue())

			_, ok = g.TryAcquire()
			Expect(ok).To(BeFalse())
			Expect(second.Release()).To(Succeed())
		})
	})

	Describe("Acquire", func() {
		It("returns immediately when free", func() {
			p, err := g.Acquire(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(p.Release()).To(Succeed())
		})

		It("suspends until the holder releases", func() {
			holder, _ := g.TryAcquire()

			acquired := make(chan *gate.Permit)
			go func() {
				defer GinkgoRecover()
				p, err := g.Acquire(context.Background())
				Expect(err).NotTo(HaveOccurred())
				acquired <- p
			}()

			Eventually(g.Waiting).Should(Equal(int64(1)))
			Consistently(acquired, 50*time.Millisecond).ShouldNot(Receive())

			Expect(holder.Release()).To(Succeed())

			var p *gate.Permit
			Eventually(acquired).Should(Receive(&p))
			Expect(g.Held()).To(BeTrue())
			Expect(g.Waiting()).To(Equal(int64(0)))
			Expect(p.Release()).To(Succeed())
		})

		It("gives up without holding the gate when the context ends", func() {
			holder, _ := g.TryAcquire()

			ctx, cancel := context.WithCancel(context.Background())
			errs := make(chan error, 1)
			go func() {
				_, err := g.Acquire(ctx)
				errs <- err
			}()

			Eventually(g.Waiting).Should(Equal(int64(1)))
			cancel()

			Eventually(errs).Should(Receive(MatchError(context.Canceled)))
			Expect(holder.Release()).To(Succeed())

			_, ok := g.TryAcquire()
			Expect(ok).To(BeTrue())
		})

		It("never admits two holders at once", func() {
			var (
				active  atomic.Int32
				maxSeen atomic.Int32
				wg      sync.WaitGroup
			)

			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()

					p, err := g.Acquire(context.Background())
					Expect(err).NotTo(HaveOccurred())

					n := active.Add(1)
					for {
						cur := maxSeen.Load()
						if n <= cur || maxSeen.CompareAndSwap(cur, n) {
							break
						}
					}
					time.Sleep(time.Millisecond)
					active.Add(-1)

					Expect(p.Release()).To(Succeed())
				}()
			}

			wg.Wait()
			Expect(maxSeen.Load()).To(Equal(int32(1)))
			Expect(g.Held()).To(BeFalse())
		})
	})
})
