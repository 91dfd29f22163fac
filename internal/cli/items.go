package cli

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"

	errgo "gopkg.in/errgo.v1"

	"github.com/rogpeppe/xhgo/internal/jsonpath"
	"github.com/rogpeppe/xhgo/internal/requestitem"
)

// items is the classified result of parsing every positional
// REQUEST_ITEM argument, ready to be folded into a request.
type items struct {
	headers     []requestitem.Item // Header and HeaderUnset, in order
	queryParams []requestitem.Item
	dataFields  []requestitem.Item // DataField and JSONField, in order
	formFiles   []requestitem.Item
}

func classifyItems(args []string) (items, error) {
	var it items
	for _, arg := range args {
		item, err := requestitem.ParseItem(arg)
		if err != nil {
			return items{}, errgo.Mask(err)
		}
		switch item.Kind {
		case requestitem.Header, requestitem.HeaderUnset:
			it.headers = append(it.headers, item)
		case requestitem.QueryParam:
			it.queryParams = append(it.queryParams, item)
		case requestitem.DataField, requestitem.JSONField:
			it.dataFields = append(it.dataFields, item)
		case requestitem.FormFile:
			it.formFiles = append(it.formFiles, item)
		}
	}
	return it, nil
}

func (it items) hasBody() bool {
	return len(it.dataFields) > 0 || len(it.formFiles) > 0
}

func (it items) applyQuery(u *url.URL) {
	if len(it.queryParams) == 0 {
		return
	}
	q := u.Query()
	for _, item := range it.queryParams {
		q.Add(item.Name, item.Value)
	}
	u.RawQuery = q.Encode()
}

// jsonBody builds the nested JSON tree for --json (the default body
// format), one jsonpath.SetValue call per data field in item order.
func (it items) jsonBody() ([]byte, error) {
	var root interface{} = map[string]interface{}{}
	for _, item := range it.dataFields {
		path, err := jsonpath.ParsePath(item.Name)
		if err != nil {
			return nil, errgo.Notef(err, "invalid field name %q", item.Name)
		}
		var value interface{}
		if item.Kind == requestitem.JSONField {
			value = item.JSON
		} else {
			value = item.Value
		}
		root, err = jsonpath.SetValue(root, path, value)
		if err != nil {
			if te, ok := err.(*jsonpath.TypeError); ok {
				te.RawPath = item.Name
			}
			return nil, errgo.Mask(err)
		}
	}
	return marshalJSON(root)
}

// formValues builds the flat name=value set for --form, ignoring the
// nested-path grammar (form field names are taken literally).
func (it items) formValues() url.Values {
	values := make(url.Values, len(it.dataFields))
	for _, item := range it.dataFields {
		v := item.Value
		if item.Kind == requestitem.JSONField {
			b, _ := marshalJSON(item.JSON)
			v = string(b)
		}
		values.Add(item.Name, v)
	}
	return values
}

// multipartBody builds a multipart/form-data body out of both the
// plain data fields and the file fields, used whenever a FormFile item
// is present (an explicit --form request is silently upgraded).
func (it items) multipartBody() (body []byte, contentType string, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, item := range it.dataFields {
		v := item.Value
		if item.Kind == requestitem.JSONField {
			b, _ := marshalJSON(item.JSON)
			v = string(b)
		}
		if err := w.WriteField(item.Name, v); err != nil {
			return nil, "", errgo.Mask(err)
		}
	}
	for _, item := range it.formFiles {
		data, err := requestitem.FileToPart(item.Value)
		if err != nil {
			return nil, "", errgo.Notef(err, "cannot read file for field %q", item.Name)
		}
		mimeType := item.Mime
		part, err := createFormFilePart(w, item.Name, filepath.Base(item.Value), mimeType)
		if err != nil {
			return nil, "", errgo.Mask(err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", errgo.Mask(err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", errgo.Mask(err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func createFormFilePart(w *multipart.Writer, field, filename, mimeType string) (io.Writer, error) {
	if mimeType == "" {
		return w.CreateFormFile(field, filename)
	}
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="` + field + `"; filename="` + filename + `"`}
	h["Content-Type"] = []string{mimeType}
	return w.CreatePart(h)
}

// applyHeaders sets and unsets headers in item order, so a later
// HeaderUnset item can remove an earlier Header item's value.
func (it items) applyHeaders(h http.Header) {
	for _, item := range it.headers {
		if item.Kind == requestitem.HeaderUnset {
			h.Del(item.Name)
			continue
		}
		h.Set(item.Name, item.Value)
	}
}
