package ckan

import (
	"io"
	"mime/multipart"
	"sort"
)

// newMultipartBody streams the form fields and the file as a multipart
// body through a pipe, so memory use stays bounded regardless of file
// size. Write errors surface on the read side via CloseWithError.
func newMultipartBody(fields map[string]string, filename string, file io.Reader) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	go func() {
		var err error
		defer func() {
			pw.CloseWithError(err)
		}()
		for _, k := range keys {
			if err = writer.WriteField(k, fields[k]); err != nil {
				return
			}
		}
		var part io.Writer
		if part, err = writer.CreateFormFile("upload", filename); err != nil {
			return
		}
		if _, err = io.Copy(part, file); err != nil {
			return
		}
		err = writer.Close()
	}()

	return pr, writer.FormDataContentType()
}
