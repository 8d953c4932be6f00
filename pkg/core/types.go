package core

import "fmt"

// KeyLen is the length of an ObjectKey: a hex encoded 256-bit digest.
const KeyLen = 64

// ObjectKey is the lowercase hex SHA-256 digest of an object's content.
type ObjectKey string

// Valid reports whether k has the shape of a key: 64 lowercase hex characters.
func (k ObjectKey) Valid() bool {
	if len(k) != KeyLen {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (k ObjectKey) String() string { return string(k) }

// Category is a top-level directory on the remote store together with the
// file extension objects in it are stored under.
type Category struct {
	Name string
	Ext  string
}

var (
	Models  = Category{Name: "models", Ext: ".gguf"}
	Prompts = Category{Name: "prompts", Ext: ".jsonl"}
	Bench   = Category{Name: "bench", Ext: ".bin"}
	Results = Category{Name: "results", Ext: ".jsonl"}
	Runs    = Category{Name: "runs", Ext: ".cbor"}
	Blobs   = Category{Name: "blobs", Ext: ".bin"}
)

// WithExt returns a copy of c stored under a different extension.
func (c Category) WithExt(ext string) Category {
	c.Ext = ext
	return c
}

func (c Category) String() string { return c.Name }

// Categories lists the fixed categories.
var Categories = []Category{Models, Prompts, Bench, Results, Runs, Blobs}

// ParseCategory returns the fixed category called name.
func ParseCategory(name string) (Category, error) {
	for _, c := range Categories {
		if c.Name == name {
			return c, nil
		}
	}
	return Category{}, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, name)
}
