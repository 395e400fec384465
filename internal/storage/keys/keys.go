// Package keys formats object keys and addresses shared by the storage drivers.
package keys

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// Remote returns the backend key for a logical key.
func Remote(prefix, key string) string {
	return prefix + key
}

// Logical strips prefix from a backend key.
func Logical(prefix, remote string) string {
	return strings.TrimPrefix(remote, prefix)
}

// ObjectURL formats <endpoint>/<bucket>/<key> with each key segment escaped.
func ObjectURL(endpoint, bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(endpoint, "/") + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

// ObjectURI formats s3://<bucket>/<key>.
func ObjectURI(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// ContentType guesses the content type of an object from its key. Media and
// config types are fixed; other extensions go through the mime table.
func ContentType(key string) string {
	ext := strings.ToLower(path.Ext(key))
	switch ext {
	case ".json":
		return "application/json"
	case ".txt", ".log":
		return "text/plain"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case "":
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
