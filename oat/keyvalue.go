/*Copyright (C) 2026 wyd20162016. All Rights Reserved.*/
package oat

import (
	"bytes"

	"github.com/elliotchance/orderedmap"
	"github.com/pkg/errors"
)

// KeyValueStore decodes the key/value pairs dex2oat recorded after the fixed
// header (compiler command line, image location, pic, ...). Keys are kept in
// the order they appear in the image and map to string values.
func (img *Image) KeyValueStore() (*orderedmap.OrderedMap, error) {
	size := uint64(img.header.KeyValueStoreSize())
	store, err := img.bytesAt(img.keyValueStoreStart, size)
	if err != nil {
		return nil, &DecodeError{Op: "key-value store", Addr: img.keyValueStoreStart, Err: err}
	}

	m := orderedmap.NewOrderedMap()
	for len(store) > 0 {
		key, rest, ok := cutCString(store)
		if !ok {
			return nil, &DecodeError{Op: "key-value store", Addr: img.keyValueStoreStart,
				Err: errors.Wrap(ErrOutOfBounds, "unterminated key")}
		}
		value, rest, ok := cutCString(rest)
		if !ok {
			return nil, &DecodeError{Op: "key-value store", Addr: img.keyValueStoreStart,
				Err: errors.Wrapf(ErrOutOfBounds, "unterminated value for %q", key)}
		}
		m.Set(key, value)
		store = rest
	}
	return m, nil
}

// StoreValue returns the value recorded for key in the key-value store.
func (img *Image) StoreValue(key string) (string, error) {
	m, err := img.KeyValueStore()
	if err != nil {
		return "", err
	}
	v, ok := m.Get(key)
	if !ok {
		return "", errors.Wrapf(ErrNotFound, "key %q", key)
	}
	return v.(string), nil
}

func cutCString(b []byte) (string, []byte, bool) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, false
	}
	return string(b[:i]), b[i+1:], true
}
