package kassets

import (
	"path"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/enfabrica/nucleus/lib/khttp"
	"github.com/enfabrica/nucleus/lib/khttp/kresponse"
	"github.com/enfabrica/nucleus/lib/khttp/krouter"
	"github.com/enfabrica/nucleus/lib/logger"
)

// Mapper returns the url paths an asset should be served at.
//
// name is the path of the asset, always starting with /.
type Mapper func(name string) []string

// BasicMapper serves each asset at its own path, and index.html files also
// at the path of their directory.
func BasicMapper(name string) []string {
	if path.Base(name) == "index.html" {
		return []string{name, strings.TrimSuffix(name, "index.html")}
	}
	return []string{name}
}

// PrefixMapper prepends prefix to the paths returned by mapper.
func PrefixMapper(prefix string, mapper Mapper) Mapper {
	return func(name string) []string {
		paths := mapper(name)
		for i, p := range paths {
			paths[i] = khttp.JoinPreserve("/", prefix, p)
		}
		return paths
	}
}

type AssetResource struct {
	Name string
	Mime kresponse.Mime
	Size int

	Paths []string
}

type AssetStats struct {
	Skipped []AssetResource
	Mapped  []AssetResource

	Total uint64
}

func (as *AssetStats) AddSkipped(res AssetResource) {
	if as == nil {
		return
	}
	as.Skipped = append(as.Skipped, res)
}

func (as *AssetStats) AddMapped(res AssetResource) {
	if as == nil {
		return
	}
	as.Mapped = append(as.Mapped, res)
	as.Total += uint64(res.Size)
}

func (as AssetStats) Log(p logger.Printer) {
	p("-------------------------------")
	p("Registered assets")

	if len(as.Skipped) > 0 {
		p("  Skipped:")
		for _, res := range as.Skipped {
			p("  - %s (%s)", res.Name, humanize.Bytes(uint64(res.Size)))
		}
	}

	if len(as.Mapped) > 0 {
		p("  Mapped:")
		for _, res := range as.Mapped {
			p("  - %s - %s - size %s", res.Name, res.Mime, humanize.Bytes(uint64(res.Size)))
			for _, path := range res.Paths {
				if path == res.Name {
					continue
				}
				p("    - re-mapped as %s", path)
			}
		}
	}

	p("-------------------------------")
	p("Mapped: %d, skipped %d - total size %s", len(as.Mapped), len(as.Skipped), humanize.Bytes(as.Total))
	p("-------------------------------")
}

// Register adds an Embed route to router for each asset.
//
// assets maps the path of each asset to its content, as returned by MapFromFS.
// Empty assets are skipped. Assets are registered in lexicographic order, and
// registration stops at the first route the router refuses, like a duplicate.
func Register[S any](router *krouter.Router[S], stats *AssetStats, assets map[string][]byte, mapper Mapper) error {
	names := make([]string, 0, len(assets))
	for name := range assets {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data := assets[name]
		name = path.Clean("/" + name)
		if len(data) == 0 {
			stats.AddSkipped(AssetResource{Name: name})
			continue
		}

		mime := kresponse.FromExtension(name)
		paths := mapper(name)
		for _, p := range paths {
			if err := router.AddRoute(krouter.Embed[S](p, data, mime)); err != nil {
				return err
			}
		}
		stats.AddMapped(AssetResource{Name: name, Mime: mime, Size: len(data), Paths: paths})
	}
	return nil
}
