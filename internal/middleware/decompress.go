package middleware

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/zstd"
	log "github.com/sirupsen/logrus"
)

// 解压上限，防止 zip 炸弹
const maxDecompressedBody = 50 * 1024 * 1024

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (b *decodedBody) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DecompressBody 按 Content-Encoding 解压请求体，支持 gzip/br/zstd/deflate
// 未声明编码但带 gzip magic bytes 的请求体同样解压
func DecompressBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		body := c.Request.Body
		if body == nil || body == http.NoBody {
			c.Next()
			return
		}

		encoding := strings.ToLower(strings.TrimSpace(c.GetHeader("Content-Encoding")))
		closers := []io.Closer{body}
		var reader io.Reader

		switch encoding {
		case "", "identity":
			br := bufio.NewReader(body)
			reader = br
			if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
				gz, err := gzip.NewReader(br)
				if err != nil {
					rejectBody(c, encoding, err)
					return
				}
				reader = gz
				closers = append(closers, gz)
			}
		case "gzip":
			gz, err := gzip.NewReader(body)
			if err != nil {
				rejectBody(c, encoding, err)
				return
			}
			reader = gz
			closers = append(closers, gz)
		case "br":
			reader = brotli.NewReader(body)
		case "zstd":
			dec, err := zstd.NewReader(body)
			if err != nil {
				rejectBody(c, encoding, err)
				return
			}
			rc := dec.IOReadCloser()
			reader = rc
			closers = append(closers, rc)
		case "deflate":
			fr := flate.NewReader(body)
			reader = fr
			closers = append(closers, fr)
		default:
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported Content-Encoding: " + encoding})
			c.Abort()
			return
		}

		c.Request.Body = &decodedBody{Reader: io.LimitReader(reader, maxDecompressedBody), closers: closers}
		if encoding != "" && encoding != "identity" {
			c.Request.Header.Del("Content-Encoding")
			c.Request.ContentLength = -1
			log.Debugf("middleware: decoding %s request body for %s", encoding, c.Request.URL.Path)
		}
		c.Next()
	}
}

func rejectBody(c *gin.Context, encoding string, err error) {
	log.Warnf("middleware: bad %q request body: %v", encoding, err)
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid compressed body", "details": err.Error()})
	c.Abort()
}
