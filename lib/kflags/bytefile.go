package kflags

import (
	"os"
)

type ByteFileModifier func(*ByteFileFlag)

// ByteFileFlag is a flag whose value is a path, but that stores the content
// of the file in the destination byte array.
//
// Used for config files and for PEM certificates and keys.
type ByteFileFlag struct {
	result   *[]byte
	filename *string
}

// WithFilename stores the path of the file loaded in filename.
func WithFilename(filename *string) ByteFileModifier {
	return func(bff *ByteFileFlag) {
		if bff.filename != nil {
			*filename = *bff.filename
		}
		bff.filename = filename
	}
}

// NewByteFileFlag creates a flag that reads a file into a byte array.
//
// defaultFile is the path of the default file to read. Empty means no file.
// If a default file is specified, it is loaded as soon as the flag is created,
// errors are ignored until the user explicitly sets the flag.
//
// The ByteFileFlag object implements both the flag.Value and pflag.Value interface.
func NewByteFileFlag(destination *[]byte, defaultFile string, mods ...ByteFileModifier) *ByteFileFlag {
	*destination = []byte{}
	bff := &ByteFileFlag{
		result:   destination,
		filename: &defaultFile,
	}

	for _, m := range mods {
		m(bff)
	}

	bff.Set(defaultFile)
	return bff
}

func (bf *ByteFileFlag) String() string {
	if bf.filename == nil {
		return ""
	}
	return *bf.filename
}

func (bf *ByteFileFlag) Set(value string) error {
	*bf.filename = value
	if value == "" {
		return nil
	}

	data, err := os.ReadFile(value)
	if err != nil {
		return err
	}
	*bf.result = data
	return nil
}

func (bf *ByteFileFlag) Get() interface{} {
	return *bf.filename
}

func (bf *ByteFileFlag) Type() string {
	return "file-path"
}
