package lifecycle_test

import (
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"parley/internal/domain"
	"parley/internal/protocol/lifecycle"
)

var _ = Describe("NewSessionID", func() {
	It("orders participants and is unique per attempt", func() {
		now := time.UnixMilli(1700000000000)
		a := lifecycle.NewSessionID("bob", "alice", now)
		b := lifecycle.NewSessionID("alice", "bob", now)

		Expect(string(a)).To(HavePrefix("session_alice_bob_1700000000000_"))
		Expect(strings.Split(string(a), "_")).To(HaveLen(5))
		Expect(a).NotTo(Equal(b))
	})
})

var _ = Describe("Record", func() {
	var rec *lifecycle.Record

	BeforeEach(func() {
		var err error
		rec, err = lifecycle.NewRecord("s1", "alice", "bob")
		Expect(err).NotTo(HaveOccurred())
	})

	It("starts pending with both participants active", func() {
		Expect(rec.State()).To(Equal(domain.PendingEstablishment))
		info := rec.Info()
		Expect(info.InitiatorActive).To(BeTrue())
		Expect(info.ResponderActive).To(BeTrue())
	})

	It("rejects a session with itself", func() {
		_, err := lifecycle.NewRecord("s2", "alice", "alice")
		Expect(err).To(MatchError(domain.ErrValidation))
	})

	It("keeps the peer established after one side ends", func() {
		Expect(rec.Establish()).To(Succeed())

		terminated, err := rec.End("alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(terminated).To(BeFalse())
		Expect(rec.StateFor("alice")).To(Equal(domain.Terminated))
		Expect(rec.StateFor("bob")).To(Equal(domain.Established))
		Expect(rec.State()).To(Equal(domain.Established))
	})

	It("terminates only when both sides end", func() {
		Expect(rec.Establish()).To(Succeed())
		_, _ = rec.End("bob")
		terminated, err := rec.End("alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(terminated).To(BeTrue())
		Expect(rec.State()).To(Equal(domain.Terminated))
		Expect(rec.Establish()).To(MatchError(domain.ErrStaleSession))
	})

	It("refuses flag writes from outsiders", func() {
		_, err := rec.End("mallory")
		Expect(err).To(MatchError(domain.ErrForbidden))
		Expect(rec.StateFor("mallory")).To(Equal(domain.NoSession))
	})

	It("round-trips through a snapshot", func() {
		Expect(rec.Establish()).To(Succeed())
		_, _ = rec.End("bob")
		Expect(lifecycle.Restore(rec.Info()).Info()).To(Equal(rec.Info()))
	})
})

var _ = Describe("Reuse", func() {
	DescribeTable("re-selecting a peer",
		func(s domain.SessionState, keep bool) {
			Expect(lifecycle.Reuse(s)).To(Equal(keep))
		},
		Entry("no session", domain.NoSession, false),
		Entry("pending", domain.PendingEstablishment, false),
		Entry("established", domain.Established, true),
		Entry("terminated", domain.Terminated, false),
	)
})

var _ = Describe("Registry", func() {
	var (
		reg    *lifecycle.Registry
		mu     sync.Mutex
		purged []domain.SessionID
	)

	BeforeEach(func() {
		purged = nil
		reg = lifecycle.NewRegistry(func(id domain.SessionID) {
			mu.Lock()
			defer mu.Unlock()
			purged = append(purged, id)
		})
		Expect(reg.Open("s1", "alice", "bob")).To(Succeed())
	})

	It("rejects duplicate ids", func() {
		Expect(reg.Open("s1", "alice", "bob")).To(MatchError(domain.ErrValidation))
	})

	It("purges after both participants end", func() {
		Expect(reg.Establish("s1")).To(Succeed())

		terminated, err := reg.SetActive("s1", "alice", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(terminated).To(BeFalse())

		info, err := reg.Get("s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(info.State).To(Equal(domain.Established))
		Expect(info.ResponderActive).To(BeTrue())

		terminated, err = reg.SetActive("s1", "bob", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(terminated).To(BeTrue())

		_, err = reg.Get("s1")
		Expect(err).To(MatchError(domain.ErrNotFound))
		Expect(purged).To(ConsistOf(domain.SessionID("s1")))
		Expect(reg.Len()).To(BeZero())
	})

	It("lets a participant re-activate before the peer ends", func() {
		_, _ = reg.SetActive("s1", "alice", false)
		terminated, err := reg.SetActive("s1", "alice", true)
		Expect(err).NotTo(HaveOccurred())
		Expect(terminated).To(BeFalse())
		_, _ = reg.SetActive("s1", "bob", false)
		Expect(reg.Len()).To(Equal(1))
	})

	It("purges exactly once under concurrent ends", func() {
		var wg sync.WaitGroup
		for _, who := range []domain.AccountID{"alice", "bob", "alice", "bob"} {
			wg.Add(1)
			go func(a domain.AccountID) {
				defer GinkgoRecover()
				defer wg.Done()
				_, _ = reg.SetActive("s1", a, false)
			}(who)
		}
		wg.Wait()
		Expect(purged).To(HaveLen(1))
	})
})
