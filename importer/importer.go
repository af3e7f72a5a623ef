// Package importer populates topic maps from dataset files.
//
// An Importer reads one source (a file through an afero.Fs, or the embedded
// default dataset), parses it into a tm.Graph with the reader for its format
// and bulk-adds the graph to the target map.
package importer

import (
	"context"
	"embed"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/teranos/mappa/am"
	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/importer/jtm"
	"github.com/teranos/mappa/importer/tmyaml"
	"github.com/teranos/mappa/logger"
	"github.com/teranos/mappa/sym"
	"github.com/teranos/mappa/tm"
)

//go:embed datasets/default.jtm.json
var datasets embed.FS

const (
	// DefaultDataset is the embedded dataset used when no source is configured
	DefaultDataset = "datasets/default.jtm.json"

	// DefaultBaseIRI resolves relative IRIs in the embedded dataset
	DefaultBaseIRI = "http://psi.example.org/pokemon/default.jtm"
)

// ErrUnsupportedFormat is returned for formats no reader handles
var ErrUnsupportedFormat = errors.Mark(errors.ErrInvalidInput, "unsupported dataset format")

type readFunc func(data []byte, baseIRI string) (*tm.Graph, error)

var readers = map[string]readFunc{
	am.FormatJTM:  jtm.Read,
	am.FormatYAML: tmyaml.Read,
}

// Options configures an Importer
type Options struct {
	// Source is a dataset path on Fs. Empty selects the embedded dataset.
	Source string

	// Format is jtm or yaml. Empty detects it from Source.
	Format string

	// BaseIRI resolves relative IRIs. Empty uses a file: IRI for Source.
	BaseIRI string

	// Fs defaults to the OS filesystem
	Fs afero.Fs

	// Emitter defaults to NopEmitter
	Emitter Emitter

	Logger *zap.SugaredLogger
}

// Importer loads one dataset into a topic map. It implements tm.Importer.
type Importer struct {
	source  string
	format  string
	baseIRI string
	read    readFunc
	fs      afero.Fs
	emitter Emitter
	logger  *zap.SugaredLogger
}

var _ tm.Importer = (*Importer)(nil)

// New resolves the format and base IRI up front so a bad configuration
// fails before any topic map is created.
func New(opts Options) (*Importer, error) {
	imp := &Importer{
		source:  opts.Source,
		format:  opts.Format,
		baseIRI: opts.BaseIRI,
		fs:      opts.Fs,
		emitter: opts.Emitter,
		logger:  logger.OrNop(opts.Logger),
	}
	if imp.fs == nil {
		imp.fs = afero.NewOsFs()
	}
	if imp.emitter == nil {
		imp.emitter = NopEmitter{}
	}

	if imp.source == "" {
		if imp.format == "" {
			imp.format = am.FormatJTM
		}
		if imp.baseIRI == "" {
			imp.baseIRI = DefaultBaseIRI
		}
	} else {
		if imp.format == "" {
			format, err := DetectFormat(imp.source)
			if err != nil {
				return nil, err
			}
			imp.format = format
		}
		if imp.baseIRI == "" {
			base, err := fileIRI(imp.source)
			if err != nil {
				return nil, err
			}
			imp.baseIRI = base
		}
	}

	read, ok := readers[imp.format]
	if !ok {
		return nil, errors.WithHint(
			errors.Wrapf(ErrUnsupportedFormat, "format %q", imp.format),
			"use jtm or yaml")
	}
	imp.read = read
	return imp, nil
}

// DetectFormat maps a file extension to a dataset format
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jtm", ".json":
		return am.FormatJTM, nil
	case ".yaml", ".yml":
		return am.FormatYAML, nil
	}
	return "", errors.WithHint(
		errors.Wrapf(ErrUnsupportedFormat, "cannot detect format of %q", path),
		"name the file *.jtm, *.json, *.yaml or *.yml, or set import.format")
}

func fileIRI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "resolve %s", path)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

// Source describes what will be read, for logs and progress output
func (imp *Importer) Source() string {
	if imp.source == "" {
		return "embedded:" + DefaultDataset
	}
	return imp.source
}

// Format returns the resolved dataset format
func (imp *Importer) Format() string { return imp.format }

// Import reads, parses and adds the dataset to m.
func (imp *Importer) Import(ctx context.Context, m tm.TopicMap) error {
	start := time.Now()
	ctx = logger.WithComponent(ctx, "importer")
	if _, ok := logger.MapIRIFromContext(ctx); !ok {
		ctx = logger.WithMapIRI(ctx, m.IRI())
	}
	log := logger.FromContext(ctx, imp.logger).With(logger.FieldSource, imp.Source(), logger.FieldFormat, imp.format)

	imp.emitter.EmitStage("read", imp.Source())
	imp.emitter.EmitInfo("base IRI " + imp.baseIRI)
	data, err := imp.load()
	if err != nil {
		imp.emitter.EmitError("read", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "import interrupted before parsing")
	}

	imp.emitter.EmitStage("parse", imp.format)
	g, err := imp.read(data, imp.baseIRI)
	if err != nil {
		err = errors.Wrapf(err, "parse %s", imp.Source())
		imp.emitter.EmitError("parse", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "import interrupted after parsing")
	}
	log.Debugw(sym.Import+" parsed dataset", logger.FieldTopicCount, g.TopicCount())

	imp.emitter.EmitStage("load", m.IRI())
	if err := m.AddGraph(ctx, g); err != nil {
		err = errors.Wrapf(err, "add %s to %q", imp.Source(), m.IRI())
		imp.emitter.EmitError("load", err)
		return err
	}

	topics, assocs := g.TopicCount(), len(g.Associations())
	imp.emitter.EmitProgress(topics, map[string]interface{}{"type": "topics"})
	imp.emitter.EmitProgress(assocs, map[string]interface{}{"type": "associations"})
	imp.emitter.EmitComplete(map[string]interface{}{
		"topics":       topics,
		"associations": assocs,
		"duration":     time.Since(start).Round(time.Millisecond).String(),
	})

	log.Infow(sym.Import+" dataset imported",
		logger.FieldTopicCount, topics,
		logger.FieldAssociationCount, assocs,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return nil
}

func (imp *Importer) load() ([]byte, error) {
	if imp.source == "" {
		data, err := datasets.ReadFile(DefaultDataset)
		return data, errors.Wrap(err, "read embedded dataset")
	}
	data, err := afero.ReadFile(imp.fs, imp.source)
	if err != nil {
		return nil, errors.Wrapf(err, "read dataset %s", imp.source)
	}
	return data, nil
}
