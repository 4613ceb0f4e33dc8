// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/choria-io/adaptiveform/constraints"
)

const (
	jsonContentType      = "application/json"
	multipartContentType = "multipart/form-data"
	urlEncodedType       = "application/x-www-form-urlencoded"
)

// HTTPDoer performs HTTP requests for submitForm and request, satisfied by *http.Client
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func defaultHTTPClient() HTTPDoer {
	return &http.Client{Timeout: time.Minute}
}

// apiRequest is a request made on behalf of a formula, the events are fired on the form
// once the exchange completes
type apiRequest struct {
	URI     string
	Verb    string
	Payload any
	Headers map[string]any
	Success string
	Error   string

	body        io.Reader
	contentType string
}

// Response is the payload of the success event of a request or submission
type Response struct {
	Status  int               `json:"status"`
	Body    any               `json:"body"`
	Headers map[string]string `json:"headers"`
}

func (r Response) payload() map[string]any {
	headers := make(map[string]any, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}

	return map[string]any{"status": float64(r.Status), "body": r.Body, "headers": headers}
}

func eventName(name string) string {
	return strings.TrimPrefix(name, customPrefix)
}

// submitData posts the form data to the form action, as multipart when requested or when
// files are attached
func (f *Form) submitData(p SubmitPayload) {
	payload, ok := p.Data.(map[string]any)
	if !ok {
		payload, _ = f.ExportData().(map[string]any)
	}

	body := map[string]any{
		"data":           payload,
		"submitMetadata": map[string]any{"lang": f.Lang()},
	}

	submitAs := p.SubmitAs
	if submitAs == "" {
		submitAs = multipartContentType
	}

	req := apiRequest{
		URI:     f.ActionURL(),
		Verb:    http.MethodPost,
		Payload: body,
		Headers: map[string]any{"Content-Type": submitAs},
		Success: p.Success,
		Error:   p.Error,
	}

	attachments := f.attachments()
	if len(attachments) > 0 || submitAs == multipartContentType {
		b, ct, err := multipartBody(body, attachments)
		if err != nil {
			f.log.Errorf("Could not encode submission: %v", err)
			f.Dispatch(CustomEvent(eventName(p.Error), map[string]any{}, true))
			return
		}
		req.body = b
		req.contentType = ct
	}

	f.request(req)
}

// request performs req in the background, the success or error custom event is dispatched
// on the form by AwaitPending
func (f *Form) request(req apiRequest) {
	ctx := f.ctx
	client := f.client
	log := f.log

	f.async(f, func() Action {
		resp, err := doRequest(ctx, client, req)
		if err != nil {
			log.Errorf("Error invoking a rest API: %v", err)
			return CustomEvent(eventName(req.Error), map[string]any{}, true)
		}

		if resp.Status < 200 || resp.Status > 299 {
			log.Errorf("Error fetching response from %s : %v", req.URI, resp.Body)
		}

		return CustomEvent(eventName(req.Success), resp.payload(), true)
	})
}

// encode prepares the request body honoring the Content-Type header, GET requests carry
// the payload in the query string instead
func (r *apiRequest) encode() (string, error) {
	uri := r.URI
	verb := strings.ToUpper(r.Verb)
	if verb == "" {
		verb = http.MethodGet
	}
	r.Verb = verb

	if r.body != nil {
		return uri, nil
	}

	payload, ok := r.Payload.(map[string]any)
	if !ok || len(payload) == 0 {
		return uri, nil
	}

	if verb == http.MethodGet {
		q := queryString(payload)
		if q == "" {
			return uri, nil
		}
		if strings.Contains(uri, "?") {
			return uri + "&" + q, nil
		}
		return uri + "?" + q, nil
	}

	ct := jsonContentType
	if h, ok := r.Headers["Content-Type"].(string); ok && h != "" {
		ct = h
	}

	switch {
	case strings.Contains(ct, multipartContentType):
		b, mct, err := multipartBody(payload, nil)
		if err != nil {
			return "", err
		}
		r.body = b
		r.contentType = mct

	case strings.Contains(ct, urlEncodedType):
		r.body = strings.NewReader(queryString(payload))
		r.contentType = ct

	default:
		j, err := json.Marshal(payload)
		if err != nil {
			return "", err
		}
		r.body = bytes.NewReader(j)
		r.contentType = ct
	}

	return uri, nil
}

func doRequest(ctx context.Context, client HTTPDoer, r apiRequest) (*Response, error) {
	uri, err := r.encode()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, r.Verb, uri, r.body)
	if err != nil {
		return nil, err
	}

	for k, v := range r.Headers {
		if strings.EqualFold(k, "Content-Type") {
			continue
		}
		req.Header.Set(k, constraints.ToString(v))
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	res := &Response{Status: resp.StatusCode, Headers: map[string]string{}}
	for k := range resp.Header {
		res.Headers[strings.ToLower(k)] = resp.Header.Get(k)
	}

	switch {
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		res.Body = http.StatusText(resp.StatusCode)

	case isJSON(resp.Header.Get("Content-Type")):
		var body any
		err = json.Unmarshal(raw, &body)
		if err != nil {
			res.Body = string(raw)
		} else {
			res.Body = body
		}

	default:
		res.Body = string(raw)
	}

	return res, nil
}

func isJSON(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.Contains(ct, jsonContentType)
	}

	return mt == jsonContentType
}

// formValue is how a single part or query value is encoded, objects become indented JSON
func formValue(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		j, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return ""
		}
		return string(j)
	default:
		return constraints.ToString(v)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

func queryString(payload map[string]any) string {
	q := url.Values{}
	for _, k := range sortedKeys(payload) {
		v := payload[k]
		if arr, ok := v.([]any); ok {
			j, _ := json.Marshal(arr)
			q.Add(k, string(j))
			continue
		}
		q.Add(k, formValue(v))
	}

	return q.Encode()
}

// multipartBody encodes payload as form parts followed by every attachment as a file part
// named /dataRef/name
func multipartBody(payload map[string]any, attachments map[string][]Attachment) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, k := range sortedKeys(payload) {
		if payload[k] == nil {
			continue
		}

		err := w.WriteField(k, formValue(payload[k]))
		if err != nil {
			return nil, "", err
		}
	}

	refs := make([]string, 0, len(attachments))
	for ref := range attachments {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	for _, ref := range refs {
		for _, att := range attachments[ref] {
			name := fmt.Sprintf("%s/%s", att.DataRef, att.File.Name)
			if !strings.HasPrefix(name, "/") {
				name = "/" + name
			}

			part, err := w.CreateFormFile(name, att.File.Name)
			if err != nil {
				return nil, "", err
			}

			_, err = part.Write(att.File.Content)
			if err != nil {
				return nil, "", err
			}
		}
	}

	err := w.Close()
	if err != nil {
		return nil, "", err
	}

	return buf, w.FormDataContentType(), nil
}
