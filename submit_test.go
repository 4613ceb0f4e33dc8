// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type failingClient struct {
	err error
}

func (c *failingClient) Do(*http.Request) (*http.Response, error) {
	return nil, c.err
}

type capturedRequest struct {
	method      string
	contentType string
	query       string
	body        []byte
	fields      map[string]string
	files       map[string]string
}

var _ = Describe("Submissions", func() {
	var (
		server   *httptest.Server
		mu       sync.Mutex
		captured *capturedRequest
		status   int
		log      *testLogger
	)

	last := func() *capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return captured
	}

	await := func(form *Form) {
		GinkgoHelper()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		Expect(form.AwaitPending(ctx)).To(Succeed())
		Expect(form.Pending()).To(Equal(0))
	}

	BeforeEach(func() {
		log = &testLogger{}
		status = http.StatusOK
		captured = nil

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := &capturedRequest{
				method:      r.Method,
				contentType: r.Header.Get("Content-Type"),
				query:       r.URL.RawQuery,
				fields:      map[string]string{},
				files:       map[string]string{},
			}

			if strings.HasPrefix(c.contentType, multipartContentType) {
				err := r.ParseMultipartForm(1 << 20)
				if err == nil {
					for k, v := range r.MultipartForm.Value {
						c.fields[k] = v[0]
					}
					for k, v := range r.MultipartForm.File {
						f, err := v[0].Open()
						if err == nil {
							b, _ := io.ReadAll(f)
							f.Close()
							c.files[k] = string(b)
						}
					}
				}
			} else {
				c.body, _ = io.ReadAll(r.Body)
			}

			mu.Lock()
			captured = c
			code := status
			mu.Unlock()

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(code)
			w.Write([]byte(`{"answer":"yes"}`))
		}))
		DeferCleanup(server.Close)
	})

	newForm := func(extra ...map[string]any) *Form {
		GinkgoHelper()

		items := []any{
			map[string]any{"id": "name", "name": "name", "fieldType": "text-input", "default": "bob"},
		}
		for _, e := range extra {
			items = append(items, e)
		}

		return mustForm(map[string]any{
			"action": server.URL,
			"items":  items,
		}, WithLogger(log), WithLogLevel(WarnLevel))
	}

	Describe("submitForm", func() {
		It("Should post JSON and fire the success event", func() {
			form := newForm()

			var got Action
			form.Subscribe(func(a Action) { got = a }, "done")

			form.Dispatch(Submit(SubmitPayload{Success: "custom:done", Error: "custom:failed", SubmitAs: jsonContentType}))
			await(form)

			req := last()
			Expect(req).ToNot(BeNil())
			Expect(req.method).To(Equal(http.MethodPost))
			Expect(req.contentType).To(Equal(jsonContentType))

			var body map[string]any
			Expect(json.Unmarshal(req.body, &body)).To(Succeed())
			Expect(body).To(Equal(map[string]any{
				"data":           map[string]any{"name": "bob"},
				"submitMetadata": map[string]any{"lang": "en"},
			}))

			Expect(got.IsCustom()).To(BeTrue())
			Expect(got.Payload).To(HaveKeyWithValue("status", 200.0))
			Expect(got.Payload).To(HaveKeyWithValue("body", map[string]any{"answer": "yes"}))
			Expect(got.Payload.(map[string]any)["headers"]).To(HaveKey("content-type"))
		})

		It("Should post multipart data with attachments", func() {
			form := newForm(map[string]any{"id": "doc", "name": "doc", "fieldType": "file-input"})
			fieldByID(form, "doc").SetValue("data:text/plain;name=hello.txt;base64,aGVsbG8=")
			Expect(fieldByID(form, "doc").IsValid()).To(BeTrue())

			atts := form.FormState().Attachments()
			Expect(atts).To(HaveKey("doc"))
			Expect(atts["doc"][0].File.Name).To(Equal("hello.txt"))

			form.Dispatch(Submit(SubmitPayload{Success: "custom:done", Error: "custom:failed"}))
			await(form)

			req := last()
			Expect(req).ToNot(BeNil())
			Expect(req.contentType).To(HavePrefix(multipartContentType))
			Expect(req.fields).To(HaveKey("data"))
			Expect(req.fields["data"]).To(ContainSubstring(`"name": "bob"`))
			Expect(req.fields["submitMetadata"]).To(ContainSubstring(`"lang": "en"`))
			Expect(req.files).To(HaveKeyWithValue("/doc/hello.txt", "hello"))
		})

		It("Should not submit invalid forms", func() {
			form := newForm(map[string]any{"id": "email", "name": "email", "fieldType": "text-input", "required": true})

			form.Dispatch(Submit(SubmitPayload{Success: "custom:done", SubmitAs: jsonContentType}))
			Expect(form.Pending()).To(Equal(0))
			Expect(last()).To(BeNil())
		})

		It("Should be callable from formulas", func() {
			form := newForm(map[string]any{"id": "send", "name": "send", "fieldType": "button", "events": map[string]any{
				"click":       "submitForm('custom:sent', 'custom:failed', 'application/json', {custom: 1})",
				"custom:sent": "{label: 'sent ' + string($event.payload.status)}",
			}})

			form.GetElement("send").Dispatch(Click())
			await(form)

			var body map[string]any
			Expect(json.Unmarshal(last().body, &body)).To(Succeed())
			Expect(body["data"]).To(Equal(map[string]any{"custom": 1.0}))
			Expect(form.GetElement("send").Label()).To(Equal("sent 200"))
		})
	})

	Describe("request", func() {
		It("Should send GET payloads as query strings", func() {
			form := newForm(
				map[string]any{"id": "endpoint", "name": "endpoint", "fieldType": "text-input", "default": server.URL + "/lookup"},
				map[string]any{"id": "fetch", "name": "fetch", "fieldType": "button", "events": map[string]any{
					"click":     "request(endpoint, 'GET', {q: 'x'}, {'X-Test': 'yes'}, 'custom:ok', 'custom:fail')",
					"custom:ok": "{description: $event.payload.body.answer}",
				}},
			)

			form.GetElement("fetch").Dispatch(Click())
			await(form)

			Expect(last().method).To(Equal(http.MethodGet))
			Expect(last().query).To(Equal("q=x"))
			Expect(fieldByID(form, "fetch").Description()).To(Equal("yes"))
		})

		It("Should encode url encoded bodies", func() {
			form := newForm(map[string]any{"id": "post", "name": "post", "fieldType": "button", "events": map[string]any{
				"click": "request(endpoint, 'POST', {a: 'b', n: 1}, {'Content-Type': 'application/x-www-form-urlencoded'}, 'custom:ok', 'custom:fail')",
			}}, map[string]any{"id": "endpoint", "name": "endpoint", "fieldType": "text-input", "default": server.URL})

			form.GetElement("post").Dispatch(Click())
			await(form)

			Expect(last().method).To(Equal(http.MethodPost))
			Expect(last().contentType).To(Equal(urlEncodedType))
			Expect(string(last().body)).To(Equal("a=b&n=1"))
		})

		It("Should still fire the success event for failed statuses", func() {
			mu.Lock()
			status = http.StatusNotFound
			mu.Unlock()

			form := newForm()

			var got Action
			form.Subscribe(func(a Action) { got = a }, "ok")

			form.request(apiRequest{URI: server.URL, Verb: "get", Success: "custom:ok", Error: "custom:fail"})
			await(form)

			Expect(got.Payload).To(HaveKeyWithValue("status", 404.0))
			Expect(got.Payload).To(HaveKeyWithValue("body", "Not Found"))
			Expect(log.contains("Error fetching response")).To(BeTrue())
		})

		It("Should fire the error event when the request fails", func() {
			form := mustForm(map[string]any{
				"action": "http://example.net/submit",
				"items": []any{
					map[string]any{"id": "name", "name": "name", "fieldType": "text-input", "default": "bob"},
				},
			}, WithLogger(log), WithHTTPClient(&failingClient{err: errors.New("connection refused")}))

			var got Action
			form.Subscribe(func(a Action) { got = a }, "failed")

			form.Dispatch(Submit(SubmitPayload{Success: "custom:done", Error: "custom:failed", SubmitAs: jsonContentType}))
			await(form)

			Expect(got.Type).To(Equal("failed"))
			Expect(got.Payload).To(Equal(map[string]any{}))
			Expect(log.contains("Error invoking a rest API: connection refused")).To(BeTrue())
		})

		It("Should warn about the deprecated event argument form", func() {
			form := newForm()

			_, err := requestFunc(&FunctionContext{Form: form}, server.URL, "GET", nil, "custom:ok", "custom:fail")
			Expect(err).ToNot(HaveOccurred())
			await(form)

			Expect(log.contains("This usage of request is deprecated")).To(BeTrue())
		})
	})

	Describe("Encoding", func() {
		It("Should detect JSON content types", func() {
			Expect(isJSON("application/json")).To(BeTrue())
			Expect(isJSON("application/json; charset=utf-8")).To(BeTrue())
			Expect(isJSON("text/plain")).To(BeFalse())
		})

		It("Should append query strings to existing ones", func() {
			r := &apiRequest{URI: "http://example.net/?a=1", Verb: "GET", Payload: map[string]any{"b": "2", "list": []any{1.0, 2.0}}}
			uri, err := r.encode()
			Expect(err).ToNot(HaveOccurred())
			Expect(uri).To(Equal("http://example.net/?a=1&b=2&list=%5B1%2C2%5D"))
		})

		It("Should encode objects as indented JSON form values", func() {
			Expect(formValue(map[string]any{"a": 1.0})).To(Equal("{\n  \"a\": 1\n}"))
			Expect(formValue(true)).To(Equal("true"))
		})
	})
})
