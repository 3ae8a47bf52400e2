package receipt_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt2json/internal/document"
	"github.com/zombor/receipt2json/internal/extraction"
	"github.com/zombor/receipt2json/internal/receipt"
	"github.com/zombor/receipt2json/internal/scanning"
)

const scannerReply = "```json\n" + `{
  "merchant": "Integration Pharma",
  "date": "20/03/2024",
  "invoice_number": "INT/42",
  "total_net_amount": 42.5,
  "items": [{"name": "Paracetamol", "quantity": 2, "rate": 21.25, "amount": 42.5}]
}` + "\n```"

// countingScanner answers every call with scannerReply.
type countingScanner struct {
	calls atomic.Int32
}

func (s *countingScanner) Generate(ctx context.Context, prompt string, img *document.Image) (string, error) {
	s.calls.Add(1)
	return scannerReply, nil
}

func (s *countingScanner) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		db       *receipt.BoltDB
		scanner  *countingScanner
		ghServer *ghttp.Server
	)

	BeforeEach(func() {
		tempDir := GinkgoT().TempDir()

		var err error
		db, err = receipt.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err := receipt.NewLocalStorage(filepath.Join(tempDir, "extractions"))
		Expect(err).NotTo(HaveOccurred())

		scanner = &countingScanner{}
		extractor := extraction.NewService(document.NewNormalizer(2), extraction.NewCache(), scanner, extraction.Options{
			CallTimeout:    time.Second,
			InitialBackoff: time.Millisecond,
		})

		server := receipt.NewServer(receipt.NewService(db, extractor, store), receipt.BasicAuth{})
		ghServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
			ghServer.RouteToHandler(method, regexp.MustCompile(".*"), server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghServer.Close()
		db.Close()
	})

	receiptPNG := func() []byte {
		img := image.NewRGBA(image.Rect(0, 0, 40, 60))
		for y := range 60 {
			for x := range 40 {
				img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 4), B: 128, A: 255})
			}
		}
		var buf bytes.Buffer
		Expect(png.Encode(&buf, img)).To(Succeed())
		return buf.Bytes()
	}

	upload := func(data []byte) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", "receipt.png")
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghServer.URL()+"/api/extractions", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("should extract, archive and serve a receipt", func() {
		resp := upload(receiptPNG())
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var ext receipt.Extraction
		Expect(json.NewDecoder(resp.Body).Decode(&ext)).To(Succeed())
		resp.Body.Close()

		Expect(ext.Record.Merchant).To(Equal("Integration Pharma"))
		Expect(ext.Record.Date).To(Equal("2024-03-20"))
		Expect(ext.Filename).To(Equal("INT_42.pdf"))
		Expect(ext.Width).To(Equal(40))
		Expect(ext.Height).To(Equal(60))

		By("downloading the PDF")
		resp, err := http.Get(ghServer.URL() + "/api/extractions/" + ext.ID + "/pdf")
		Expect(err).NotTo(HaveOccurred())
		pdfData, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("INT_42.pdf"))

		By("rendering the PDF back to the same size")
		img, err := document.NewNormalizer(1).Normalize(document.SourceDocument{Data: pdfData, MimeType: document.MimePDF})
		Expect(err).NotTo(HaveOccurred())
		// 40x60 pt rendered at 300 DPI
		Expect(img.Width()).To(BeNumerically("~", 167, 1))
		Expect(img.Height()).To(BeNumerically("~", 250, 1))

		By("downloading the JSON export")
		resp, err = http.Get(ghServer.URL() + "/api/extractions/" + ext.ID + "/json")
		Expect(err).NotTo(HaveOccurred())
		var rec scanning.Record
		Expect(json.NewDecoder(resp.Body).Decode(&rec)).To(Succeed())
		resp.Body.Close()
		Expect(rec.Items).To(HaveLen(1))
		Expect(rec.Items[0].Name).To(Equal("Paracetamol"))
	})

	It("should not call the scanner again for a repeated upload", func() {
		data := receiptPNG()

		first := upload(data)
		Expect(first.StatusCode).To(Equal(http.StatusCreated))
		first.Body.Close()

		second := upload(data)
		Expect(second.StatusCode).To(Equal(http.StatusCreated))
		second.Body.Close()

		Expect(scanner.calls.Load()).To(Equal(int32(1)))

		all, err := db.ListExtractions()
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(1))
	})
})
