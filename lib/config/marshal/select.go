package marshal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Use marshal.Toml to encode/decode from Toml format.
var Toml = &TomlEncoder{}

// Use marshal.Yaml to encode/decode from Yaml format.
var Yaml = &YamlEncoder{}

// Use marshal.Json to encode/decode from Json format.
var Json = &JsonEncoder{}

// Set of known encoders/decoders, in preference order.
var Known = []FileMarshaller{
	Toml, Json, Yaml,
}

// Represents a sorted list of marshallers. Lowest index is the most preferred marshaller.
type FileMarshallers []FileMarshaller

// ByExtension returns the first FileMarshaller based on the extension of the path provided.
//
// The path can be an url, the query string is ignored.
func (fm FileMarshallers) ByExtension(path string) FileMarshaller {
	path, _, _ = strings.Cut(path, "?")
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if ext == "" {
		return nil
	}
	return fm.ByFormat(ext)
}

// ByFormat returns the first FileMarshaller handling the format specified.
// Format is generally a lowercase string like "json", "yaml", ...
func (fm FileMarshallers) ByFormat(format string) FileMarshaller {
	for _, candidate := range fm {
		for _, ext := range candidate.Extensions() {
			if ext == format {
				return candidate
			}
		}
	}
	return nil
}

// Formats returns the preferred extension of each marshaller.
func (fm FileMarshallers) Formats() []string {
	result := []string{}
	for _, candidate := range fm {
		result = append(result, candidate.Extensions()[0])
	}
	return result
}

func (fm FileMarshallers) byExtensionOrError(path string) (FileMarshaller, error) {
	marshaller := fm.ByExtension(path)
	if marshaller == nil {
		return nil, fmt.Errorf("could not determine format from path %s - unknown extension? known: %s", path, strings.Join(fm.Formats(), ", "))
	}
	return marshaller, nil
}

// Marshal will marshal the specified value based on the extension of the specified path.
// If the extension is unknown, an error is returned.
func (fm FileMarshallers) Marshal(path string, value interface{}) ([]byte, error) {
	marshaller, err := fm.byExtensionOrError(path)
	if err != nil {
		return nil, err
	}
	return marshaller.Marshal(value)
}

// Unmarshal will determine the format of the file based on the extension, and unmarshal it in value.
//
// value is a pointer to the object to be parsed.
// If the extension is unknown, an error is returned.
func (fm FileMarshallers) Unmarshal(path string, data []byte, value interface{}) error {
	marshaller, err := fm.byExtensionOrError(path)
	if err != nil {
		return err
	}
	if err := marshaller.Unmarshal(data, value); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// UnmarshalAsset looks for an asset named name.<extension> for each known
// extension, in preference order, and decodes the first found into value.
//
// Returns os.ErrNotExist if no asset matched, like for a missing file.
func (fm FileMarshallers) UnmarshalAsset(name string, assets map[string][]byte, value interface{}) error {
	for _, known := range fm {
		for _, ext := range known.Extensions() {
			asset, found := assets[name+"."+ext]
			if !found {
				continue
			}
			if err := known.Unmarshal(asset, value); err != nil {
				return fmt.Errorf("parsing %s.%s: %w", name, ext, err)
			}
			return nil
		}
	}
	return os.ErrNotExist
}

// MarshalFile invokes Marshal() to then save the content in a file.
func (fm FileMarshallers) MarshalFile(path string, value interface{}) error {
	data, err := fm.Marshal(path, value)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0660)
}

// UnmarshalFile invokes Unmarshal() to parse the content of a file.
func (fm FileMarshallers) UnmarshalFile(path string, value interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return fm.Unmarshal(path, data, value)
}

// Marshal is the same as FileMarshallers.Marshal, but uses the default list of Marshallers.
func Marshal(path string, value interface{}) ([]byte, error) {
	return FileMarshallers(Known).Marshal(path, value)
}

// Unmarshal is the same as FileMarshallers.Unmarshal, but uses the default list of Marshallers.
func Unmarshal(path string, data []byte, value interface{}) error {
	return FileMarshallers(Known).Unmarshal(path, data, value)
}

// UnmarshalAsset is the same as FileMarshallers.UnmarshalAsset, but uses the default list of Marshallers.
func UnmarshalAsset(name string, assets map[string][]byte, value interface{}) error {
	return FileMarshallers(Known).UnmarshalAsset(name, assets, value)
}

// MarshalFile is the same as FileMarshallers.MarshalFile, but uses the default list of Marshallers.
func MarshalFile(path string, value interface{}) error {
	return FileMarshallers(Known).MarshalFile(path, value)
}

// UnmarshalFile is the same as FileMarshallers.UnmarshalFile, but uses the default list of Marshallers.
func UnmarshalFile(path string, value interface{}) error {
	return FileMarshallers(Known).UnmarshalFile(path, value)
}

// ByExtension is the same as FileMarshallers.ByExtension, but uses the default list of Marshallers.
func ByExtension(path string) FileMarshaller {
	return FileMarshallers(Known).ByExtension(path)
}

// Formats is the same as FileMarshallers.Formats, but uses the default list of Marshallers.
func Formats() []string {
	return FileMarshallers(Known).Formats()
}
