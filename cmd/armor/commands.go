package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"word_armor/internal/config"
	"word_armor/internal/dictionary"
	"word_armor/internal/model"
	"word_armor/internal/payload"
	"word_armor/internal/protocol/armor"
	"word_armor/internal/protocol/mapping"
	"word_armor/internal/protocol/permutation"
	dictRepo "word_armor/internal/repository/dictionary"
	"word_armor/internal/service/app"
	"word_armor/internal/utils/log"

	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// mappingFlags are shared by every command that needs a mapping.
type mappingFlags struct {
	configPath string
	seed       string
	dictPath   string
	date       string
}

func (f *mappingFlags) add(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configPath, "config", "c", "", "TOML config file")
	fs.StringVarP(&f.seed, "seed", "s", "", "seed, decimal or 0x-hex (overrides config and "+config.EnvSeed+")")
	fs.StringVarP(&f.dictPath, "dictionary", "d", "", "word list file, one word per line (default: fetch from the relay)")
	fs.StringVar(&f.date, "date", "", "date as YYYY-MM-DD (default: today, UTC)")
}

func (f *mappingFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.seed != "" {
		cfg.Armor.Seed = f.seed
	}
	if f.dictPath != "" {
		cfg.Dictionary.Path = f.dictPath
	}
	return cfg, nil
}

func (f *mappingFlags) day() (time.Time, error) {
	if f.date == "" {
		return permutation.Today(), nil
	}
	return permutation.ParseDate(f.date)
}

func (f *mappingFlags) buildMapping(cfg config.Config) (*mapping.Mapping, error) {
	seed, err := cfg.Seed()
	if err != nil {
		return nil, err
	}
	day, err := f.day()
	if err != nil {
		return nil, err
	}

	var dict *dictionary.Dictionary
	if cfg.Dictionary.Path != "" {
		dict, err = dictionary.LoadFile(cfg.Dictionary.Path)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		dict, err = app.FetchDictionary(ctx, cfg.Server.Addr, cfg.Dictionary.Version)
	}
	if err != nil {
		return nil, err
	}
	log.Debug("building mapping", zap.String("date", permutation.DateKey(day)), zap.Int("words", dict.Len()))
	return mapping.New(dict, seed, day)
}

func runDon(args []string) error {
	var (
		mf          mappingFlags
		softLimit   int
		compression string
		raw         bool
	)
	fs := pflag.NewFlagSet("armor don", pflag.ContinueOnError)
	mf.add(fs)
	fs.IntVar(&softLimit, "soft-limit", -1, "split fragments near this many characters (0: single fragment, default: config)")
	fs.StringVar(&compression, "compression", "", "none, lz4 or zstd (default: config)")
	fs.BoolVar(&raw, "raw", false, "encode stdin as-is without framing; input length must be even")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := mf.loadConfig()
	if err != nil {
		return err
	}
	if softLimit < 0 {
		softLimit = cfg.Armor.SoftLimit
	}
	comp := cfg.Compression()
	if compression != "" {
		if comp, err = payload.ParseCompression(compression); err != nil {
			return err
		}
	}

	m, err := mf.buildMapping(cfg)
	if err != nil {
		return err
	}
	data, err := readLimited(os.Stdin, payload.MaxSize)
	if err != nil {
		return err
	}

	enc := armor.NewEncoder(m)
	var fragments []string
	if raw {
		fragments, err = enc.Encode(data, softLimit)
	} else {
		fragments, err = enc.EncodeFramed(data, comp, softLimit)
	}
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)
	for _, f := range fragments {
		fmt.Fprintln(w, f)
	}
	return w.Flush()
}

func runDoff(args []string) error {
	var (
		mf         mappingFlags
		bestEffort bool
		raw        bool
	)
	fs := pflag.NewFlagSet("armor doff", pflag.ContinueOnError)
	mf.add(fs)
	fs.BoolVar(&bestEffort, "best-effort", false, "decode whatever fragments are present instead of failing on gaps")
	fs.BoolVar(&raw, "raw", false, "fragments carry unframed bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := mf.loadConfig()
	if err != nil {
		return err
	}
	m, err := mf.buildMapping(cfg)
	if err != nil {
		return err
	}

	fragments, err := readFragments(os.Stdin)
	if err != nil {
		return err
	}

	var opts []armor.DecoderOption
	if bestEffort {
		opts = append(opts, armor.WithBestEffort())
	}
	dec := armor.NewDecoder(m, opts...)

	var data []byte
	if raw {
		data, err = dec.Decode(fragments)
	} else {
		data, err = dec.DecodeFramed(fragments)
	}
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// readLimited reads all of r and fails instead of truncating when r holds
// more than limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("input exceeds %d bytes", limit)
	}
	return data, nil
}

// readFragments returns the non-blank lines of r.
func readFragments(r io.Reader) ([]string, error) {
	var fragments []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64<<20)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			fragments = append(fragments, line)
		}
	}
	return fragments, scanner.Err()
}

func runPermute(args []string) error {
	var (
		mf     mappingFlags
		length int
		head   int
	)
	fs := pflag.NewFlagSet("armor permute", pflag.ContinueOnError)
	fs.StringVarP(&mf.configPath, "config", "c", "", "TOML config file")
	fs.StringVarP(&mf.seed, "seed", "s", "", "seed, decimal or 0x-hex (overrides config and "+config.EnvSeed+")")
	fs.StringVar(&mf.date, "date", "", "date as YYYY-MM-DD (default: today, UTC)")
	fs.IntVarP(&length, "length", "n", mapping.MinDictionarySize, "permutation length")
	fs.IntVar(&head, "head", 0, "print only the first N positions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := mf.loadConfig()
	if err != nil {
		return err
	}
	seed, err := cfg.Seed()
	if err != nil {
		return err
	}
	day, err := mf.day()
	if err != nil {
		return err
	}

	perm, err := permutation.Generate(seed, day, length)
	if err != nil {
		return err
	}
	if head > 0 && head < len(perm) {
		perm = perm[:head]
	}

	w := bufio.NewWriter(os.Stdout)
	for _, p := range perm {
		fmt.Fprintln(w, p)
	}
	return w.Flush()
}

func runImportDictionary(args []string) error {
	var (
		configPath string
		file       string
		version    string
	)
	fs := pflag.NewFlagSet("armor import-dictionary", pflag.ContinueOnError)
	fs.StringVarP(&configPath, "config", "c", "", "TOML config file")
	fs.StringVarP(&file, "file", "f", "", "word list file, one word per line (required)")
	fs.StringVar(&version, "version", "", "version to publish under (default: config dictionary.version)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if file == "" {
		return fmt.Errorf("--file is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if version == "" {
		version = cfg.Dictionary.Version
	}

	dict, err := dictionary.LoadFile(file)
	if err != nil {
		return err
	}
	if dict.Len() < mapping.MinDictionarySize {
		return fmt.Errorf("%w: %d words, need %d", mapping.ErrDictionaryTooSmall, dict.Len(), mapping.MinDictionarySize)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	repo := dictRepo.NewDictionaryRepo(client.Database(cfg.Mongo.Database))
	id, err := repo.Create(ctx, &model.Dictionary{
		Version:   version,
		Digest:    dict.Digest(),
		Words:     dict.Words(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	fmt.Printf("stored dictionary %s (%d words, digest %s, id %s)\n", version, dict.Len(), dict.Digest(), id.Hex())
	return nil
}
