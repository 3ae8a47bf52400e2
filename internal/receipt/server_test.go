package receipt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/color"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt2json/internal/document"
	"github.com/zombor/receipt2json/internal/extraction"
	"github.com/zombor/receipt2json/internal/scanning"
)

var anyPath = regexp.MustCompile(".*")

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		extractor   *mockExtractor
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		extractor = newMockExtractor()
		auth = BasicAuth{}
	})

	JustBeforeEach(func() {
		server := NewServerWithMux(NewService(db, extractor, storage), auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
			ghttpServer.RouteToHandler(method, anyPath, server.ServeHTTP)
		}
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	upload := func(filename, contentType string, data []byte) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		if contentType != "" {
			h.Set("Content-Type", contentType)
		}
		part, err := writer.CreatePart(h)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghttpServer.URL()+"/api/extractions", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	decodeBody := func(resp *http.Response) map[string]any {
		defer resp.Body.Close()
		var body map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return body
	}

	Describe("POST /api/extractions", func() {
		When("the upload succeeds", func() {
			It("should return 201 with the extraction", func() {
				resp := upload("receipt.png", "image/png", pngBytes(color.White))
				Expect(resp.StatusCode).To(Equal(http.StatusCreated))
				Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
				body := decodeBody(resp)
				Expect(body["filename"]).To(Equal("CP_77.pdf"))
				Expect(body["record"]).To(HaveKeyWithValue("merchant", "City Pharma"))
			})
		})

		When("no file is sent", func() {
			It("should return 400", func() {
				body := &bytes.Buffer{}
				writer := multipart.NewWriter(body)
				Expect(writer.WriteField("other", "x")).To(Succeed())
				Expect(writer.Close()).To(Succeed())
				resp, err := http.Post(ghttpServer.URL()+"/api/extractions", writer.FormDataContentType(), body)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeBody(resp)).To(HaveKeyWithValue("error", "No file provided"))
			})
		})

		When("the type is not supported", func() {
			It("should return 415", func() {
				resp := upload("notes.txt", "text/plain", []byte("hello"))
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
				resp.Body.Close()
			})
		})

		When("the document cannot be decoded", func() {
			BeforeEach(func() {
				extractor.err = &document.DecodeError{MimeType: document.MimePNG, Reason: errors.New("bad header")}
			})

			It("should return 422", func() {
				resp := upload("receipt.png", "image/png", []byte("png?"))
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				resp.Body.Close()
			})
		})

		When("the scanner reply cannot be parsed", func() {
			BeforeEach(func() {
				extractor.err = &scanning.ParseError{Raw: "Sorry, no.", Err: errors.New("invalid character")}
			})

			It("should return 502 with the raw reply", func() {
				resp := upload("receipt.png", "image/png", pngBytes(color.White))
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				Expect(decodeBody(resp)).To(HaveKeyWithValue("raw_response", "Sorry, no."))
			})
		})

		When("the scanner is unavailable", func() {
			BeforeEach(func() {
				extractor.err = &extraction.CollaboratorError{Attempts: 3, Err: errors.New("connection refused")}
			})

			It("should return 502", func() {
				resp := upload("receipt.png", "image/png", pngBytes(color.White))
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				resp.Body.Close()
			})
		})

		When("the scanner times out", func() {
			BeforeEach(func() {
				extractor.err = &extraction.CollaboratorError{Attempts: 1, Err: context.DeadlineExceeded}
			})

			It("should return 504", func() {
				resp := upload("receipt.png", "image/png", pngBytes(color.White))
				Expect(resp.StatusCode).To(Equal(http.StatusGatewayTimeout))
				resp.Body.Close()
			})
		})
	})

	Describe("reading extractions", func() {
		var id string

		JustBeforeEach(func() {
			resp := upload("receipt.png", "image/png", pngBytes(color.Black))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			id = decodeBody(resp)["id"].(string)
		})

		It("should list extractions", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var all []*Extraction
			Expect(json.NewDecoder(resp.Body).Decode(&all)).To(Succeed())
			Expect(all).To(HaveLen(1))
			Expect(all[0].ID).To(Equal(id))
		})

		It("should get one extraction", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/" + id)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decodeBody(resp)).To(HaveKeyWithValue("id", id))
		})

		It("should download the PDF as an attachment", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/" + id + "/pdf")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/pdf"))
			Expect(resp.Header.Get("Content-Disposition")).To(Equal(`attachment; filename="CP_77.pdf"`))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data[:5])).To(Equal("%PDF-"))
		})

		It("should download the JSON export", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/" + id + "/json")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var rec scanning.Record
			Expect(json.NewDecoder(resp.Body).Decode(&rec)).To(Succeed())
			Expect(rec.InvoiceNumber).To(Equal("CP/77"))
		})

		It("should delete the extraction", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/extractions/"+id, nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.extractions).To(BeEmpty())
		})

		It("should return 404 for unknown ids", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions/missing/pdf")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("preflight", func() {
		It("should answer OPTIONS with CORS headers", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/extractions", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("DELETE"))
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/extractions")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/extractions", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "wrong")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/extractions", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})
})
