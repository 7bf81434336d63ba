package service

import (
	"fmt"
	"net"
	"strconv"

	"github.com/roach88/contentsync/internal/resource"
)

// DefaultNamespace is the path prefix under which variants are served.
const DefaultNamespace = "cmgr"

// URLBuilder renders readable variant URLs of the form
// http://<host>:<port>/<namespace>/<key>/<id>/<variant>.
type URLBuilder struct {
	Host      string
	Port      int
	Namespace string
}

// Base returns the URL prefix for the given http key.
func (b URLBuilder) Base(key string) string {
	host := b.Host
	if host == "" {
		host = "127.0.0.1"
	}
	ns := b.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return fmt.Sprintf("http://%s/%s/%s", net.JoinHostPort(host, strconv.Itoa(b.Port)), ns, key)
}

// VariantURL returns the URL serving one variant of a resource.
func (b URLBuilder) VariantURL(key string, id resource.ID, variant string) string {
	return fmt.Sprintf("%s/%s/%s", b.Base(key), id, variant)
}
