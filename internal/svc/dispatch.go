package svc

import (
	"net/http"

	"github.com/informatics-isi-edu/hatrac/internal/urlpath"
)

// dispatch routes a parsed request to the resource-kind handler named
// in §4.6: subresource token first (metadata/acl/upload/versions), then
// namespace-vs-object-vs-version by presence of a version qualifier and
// the resolved kind.
func dispatch(s *Server, w http.ResponseWriter, req *request) {
	p := req.parsed

	if p.Sub != "" {
		switch p.Sub {
		case urlpath.SubMetadata:
			handleMetadata(s, w, req)
		case urlpath.SubACL:
			handleACL(s, w, req)
		case urlpath.SubUpload:
			handleUpload(s, w, req)
		case urlpath.SubVersions:
			handleVersionsList(s, w, req)
		}
		return
	}

	if p.Version != "" {
		handleVersion(s, w, req)
		return
	}

	handleNamespaceOrObject(s, w, req)
}
