/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valpere/qgen/internal/annoy"
	"github.com/valpere/qgen/internal/builder"
	"github.com/valpere/qgen/internal/corpus"
	"github.com/valpere/qgen/internal/encoder"
	"github.com/valpere/qgen/internal/nlp"
	"github.com/valpere/qgen/internal/pipeline"
	"github.com/valpere/qgen/internal/store"
)

// corpusFlags are shared by the commands that query a target corpus
// outside of a training config.
type corpusFlags struct {
	rootDir    string
	pretrained string
	encoder    string
	target     string
	index      string
	workers    int
	trees      int
	cacheSize  int
	noProgress bool
}

func (f *corpusFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.rootDir, "root", ".", "Project root that relative model paths are resolved against")
	cmd.Flags().StringVar(&f.pretrained, "pretrained", pipeline.DefaultPretrainedConfig, "Pretrained encoder config")
	cmd.Flags().StringVarP(&f.encoder, "encoder", "e", "use", "Sentence encoder (fasttext, glove, use)")
	cmd.Flags().StringVarP(&f.target, "target", "t", "", "Target corpus, one sentence per line")
	cmd.Flags().StringVar(&f.index, "index", "", "Index file (default <target dir>/<encoder>-annoy_index.ann)")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", builder.DefaultWorkers, "Concurrent batches")
	cmd.Flags().IntVar(&f.trees, "trees", annoy.DefaultTrees, "Number of index trees")
	cmd.Flags().IntVar(&f.cacheSize, "cache-size", encoder.DefaultCacheSize, "Sentence embedding cache entries")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "Disable progress bars")
	cmd.MarkFlagRequired("target")
}

func (f *corpusFlags) indexPath() string {
	if f.index != "" {
		return f.index
	}
	return filepath.Join(filepath.Dir(f.target), f.encoder+"-annoy_index.ann")
}

func (f *corpusFlags) progress() io.Writer {
	if f.noProgress {
		return nil
	}
	return os.Stderr
}

func (f *corpusFlags) loadPretrained() (encoder.Pretrained, error) {
	path := f.pretrained
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.rootDir, path)
	}
	return encoder.LoadPretrained(path, f.rootDir)
}

// openEncoder builds the named encoder behind an embedding cache. The
// returned func releases model resources.
func openEncoder(name string, pre encoder.Pretrained, cacheSize int) (encoder.Encoder, func(), error) {
	enc, err := encoder.FromPretrained(name, pre)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load encoder %s: %w", name, err)
	}
	release := func() {
		if c, ok := enc.(io.Closer); ok {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close encoder", "encoder", name, "error", err)
			}
		}
	}
	if cacheSize <= 0 {
		return enc, release, nil
	}
	cached, err := encoder.NewCached(enc, cacheSize)
	if err != nil {
		release()
		return nil, nil, err
	}
	return cached, release, nil
}

// openCorpus loads the encoder and builds or loads the index for
// targetPath. Closing the returned func closes both.
func openCorpus(ctx context.Context, targetPath, indexPath, encoderName string, pre encoder.Pretrained, cacheSize int, opts annoy.Options) (*corpus.Corpus, func(), error) {
	enc, release, err := openEncoder(encoderName, pre, cacheSize)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	logger.Info("opening corpus", "target", targetPath, "index", indexPath, "encoder", encoderName)
	c, err := corpus.New(ctx, targetPath, indexPath, enc, corpus.Options{Index: opts, Logger: logger})
	if err != nil {
		release()
		return nil, nil, err
	}
	return c, func() {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close index", "error", err)
		}
		release()
	}, nil
}

// newWMD loads the word vectors behind word mover's distance.
func newWMD(pre encoder.Pretrained) (nlp.WMD, error) {
	wv, err := encoder.WMDVectors(pre)
	if err != nil {
		return nlp.WMD{}, fmt.Errorf("failed to load WMD vectors: %w", err)
	}
	logger.Debug("loaded WMD vectors", "words", wv.Len(), "dimension", wv.Dimension())
	return nlp.WMD{Vectors: wv}, nil
}

// openLedger opens the run ledger, or returns nil when it is disabled.
func openLedger() (*store.Store, error) {
	if ledgerPath == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(ledgerPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	db, err := store.New(ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	return db, nil
}
