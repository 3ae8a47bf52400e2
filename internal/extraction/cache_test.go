package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/receipt2json/internal/document"
	"github.com/zombor/receipt2json/internal/scanning"
)

var _ = Describe("Cache", func() {
	var (
		cache *Cache
		fp    document.Fingerprint
	)

	BeforeEach(func() {
		cache = NewCache()
		fp = document.Fingerprint{1, 2, 3}
	})

	When("nothing was stored", func() {
		It("should miss", func() {
			_, ok := cache.Get(fp)
			Expect(ok).To(BeFalse())
			Expect(cache.Len()).To(Equal(0))
		})
	})

	When("a record was stored", func() {
		BeforeEach(func() {
			Expect(cache.Put(fp, scanning.Record{Merchant: "first", Items: []scanning.LineItem{{Name: "A"}}})).To(BeTrue())
		})

		It("should return it", func() {
			rec, ok := cache.Get(fp)
			Expect(ok).To(BeTrue())
			Expect(rec.Merchant).To(Equal("first"))
		})

		It("should keep the first record on a second put", func() {
			Expect(cache.Put(fp, scanning.Record{Merchant: "second"})).To(BeFalse())
			rec, _ := cache.Get(fp)
			Expect(rec.Merchant).To(Equal("first"))
			Expect(cache.Len()).To(Equal(1))
		})

		It("should not be affected by changes to a returned record", func() {
			rec, _ := cache.Get(fp)
			rec.Items[0].Name = "changed"
			again, _ := cache.Get(fp)
			Expect(again.Items[0].Name).To(Equal("A"))
		})

		It("should not be visible from another cache", func() {
			_, ok := NewCache().Get(fp)
			Expect(ok).To(BeFalse())
		})
	})
})
