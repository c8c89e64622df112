// Package persist binds encoding.Binary{M,Unm}arshaler state to crash safe storage.
package persist

import (
	"encoding"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/extremofile"
	"github.com/temoto/uplink/log2"
)

type Stater interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type storage interface {
	Read() ([]byte, error)
	io.Writer
}

// Persist with empty root is valid and does nothing.
type Persist struct {
	sync.Mutex
	log     *log2.Log
	tag     string
	target  Stater
	storage storage
}

func New(tag string, target Stater, root string, log *log2.Log) (*Persist, error) {
	if target == nil {
		return nil, errors.NotValidf("persist %s target=nil", tag)
	}
	p := &Persist{tag: tag, log: log, target: target}
	if root == "" {
		p.log.Debugf("persist %s disabled", p.tag)
		return p, nil
	}
	p.storage = extremofile.New(extremofile.Config{
		Dir:      filepath.Join(root, tag),
		DirPerm:  0755,
		FilePerm: 0644,
	})
	return p, nil
}

func (p *Persist) Enabled() bool { return p != nil && p.storage != nil }

// Load keeps target unchanged when storage is empty.
// Non-critical read errors with usable data are logged and ignored.
func (p *Persist) Load() error {
	if !p.Enabled() {
		return nil
	}
	p.Lock()
	defer p.Unlock()
	tbegin := time.Now()
	b, err := p.storage.Read()
	p.log.Debugf("persist %s storage.read duration=%v", p.tag, time.Since(tbegin))
	if b != nil {
		if err != nil {
			if extremofile.IsCritical(err) {
				return errors.Annotatef(err, "persist %s Load", p.tag)
			}
			p.log.Errorf("persist %s ignore non-critical storage err=%v", p.tag, err)
		}
		err = p.target.UnmarshalBinary(b)
	} else if err != nil && !extremofile.IsCritical(err) {
		p.log.Debugf("persist %s empty storage err=%v", p.tag, err)
		err = nil
	}
	return errors.Annotatef(err, "persist %s Load", p.tag)
}

func (p *Persist) Store() error {
	if !p.Enabled() {
		return nil
	}
	p.Lock()
	defer p.Unlock()
	b, err := p.target.MarshalBinary()
	if err == nil {
		tbegin := time.Now()
		_, err = p.storage.Write(b)
		p.log.Debugf("persist %s storage.write duration=%v", p.tag, time.Since(tbegin))
	}
	return errors.Annotatef(err, "persist %s Store", p.tag)
}
