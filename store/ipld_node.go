package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ipld/go-ipld-prime/datamodel"

	"github.com/ipfs/go-cid"
	format "github.com/ipfs/go-ipld-format"
)

// nodeWithBytes pairs a decoded IPLD node with the raw bytes it was decoded
// from, so wrapIPLDNode doesn't need to re-encode to answer RawData().
type nodeWithBytes struct {
	node datamodel.Node
	raw  []byte
}

// ipldNodeAdapter satisfies format.Node so boxo's pinner can walk a block
// whose payload is an arbitrary dag-cbor map (an oplog.Entry's canonical
// form), without boxo needing to know anything about oplog.
type ipldNodeAdapter struct {
	nodeWithBytes
	cid cid.Cid
}

func wrapIPLDNode(n nodeWithBytes, c cid.Cid) format.Node {
	return &ipldNodeAdapter{nodeWithBytes: n, cid: c}
}

func (w *ipldNodeAdapter) String() string {
	return fmt.Sprintf("ipldNodeAdapter(cid=%s)", w.cid.String())
}

func (w *ipldNodeAdapter) Cid() cid.Cid { return w.cid }

func (w *ipldNodeAdapter) RawData() []byte { return w.raw }

func (w *ipldNodeAdapter) Loggable() map[string]interface{} {
	return map[string]interface{}{"cid": w.cid.String()}
}

func (w *ipldNodeAdapter) Resolve(path []string) (interface{}, []string, error) {
	return nil, nil, errors.New("store: resolve not implemented")
}

func (w *ipldNodeAdapter) Tree(path string, depth int) []string { return nil }

func (w *ipldNodeAdapter) ResolveLink(path []string) (*format.Link, []string, error) {
	return nil, nil, errors.New("store: resolve link not implemented")
}

func (w *ipldNodeAdapter) Copy() format.Node {
	return &ipldNodeAdapter{nodeWithBytes: w.nodeWithBytes, cid: w.cid}
}

func (w *ipldNodeAdapter) Links() []*format.Link { return nil }

func (w *ipldNodeAdapter) Stat() (*format.NodeStat, error) { return &format.NodeStat{}, nil }

func (w *ipldNodeAdapter) Size() (uint64, error) { return uint64(len(w.raw)), nil }

func bytesReader(data []byte) *bytes.Reader { return bytes.NewReader(data) }
