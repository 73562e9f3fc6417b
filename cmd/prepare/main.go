package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/synaptica-ai/ehrprep/pkg/common/config"
	"github.com/synaptica-ai/ehrprep/pkg/common/database"
	"github.com/synaptica-ai/ehrprep/pkg/common/logger"
	"github.com/synaptica-ai/ehrprep/pkg/common/models"
	"github.com/synaptica-ai/ehrprep/pkg/preparer"
	"github.com/synaptica-ai/ehrprep/pkg/storage"
)

func main() {
	cfg := config.Load()

	configPath := flag.String("config", cfg.DefaultPipeline, "pipeline config (YAML)")
	kind := flag.String("kind", models.KindFinetune, "preparation kind: finetune, mlm or onehot")
	runName := flag.String("run-name", "", "override paths.run_name")
	useCache := flag.Bool("vocab-cache", false, "cache vocabularies in Redis (REDIS_* env)")
	flag.Parse()

	logger.Init()

	pipelineCfg, err := config.LoadPipeline(*configPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load pipeline config")
	}
	if *runName != "" {
		pipelineCfg.Paths.RunName = *runName
	}

	var opts []storage.Option
	if *useCache {
		opts = append(opts, storage.WithVocabularyCache(
			storage.NewVocabularyCache(database.GetRedis(cfg), "", cfg.VocabularyCacheTTL),
		))
		defer database.CloseRedis()
	}
	files := storage.NewFileStore(opts...)

	prep, err := preparer.NewDatasetPreparer(pipelineCfg, files, logger.WithField("config", *configPath))
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid pipeline config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var summary map[string]interface{}
	switch *kind {
	case models.KindFinetune, models.KindMLM:
		var result *preparer.Result
		if *kind == models.KindMLM {
			result, err = prep.PrepareMLM(ctx)
		} else {
			result, err = prep.PrepareFinetune(ctx)
		}
		if err == nil {
			summary = map[string]interface{}{
				"run_folder": result.RunFolder,
				"stages":     result.Stages,
				"patients":   result.Counts,
				"lengths":    result.Lengths,
			}
		}
	case models.KindOneHot:
		var result *preparer.OneHotResult
		result, err = prep.PrepareOneHot(ctx)
		if err == nil {
			trainRows, cols := result.Train.Dims()
			valRows, _ := result.Val.Dims()
			summary = map[string]interface{}{
				"run_folder":     result.RunFolder,
				"train_patients": trainRows,
				"val_patients":   valRows,
				"columns":        cols,
			}
		}
	default:
		logger.Log.WithField("kind", *kind).Fatal("Unknown preparation kind")
	}
	if err != nil {
		logger.Log.WithError(err).Fatal("Preparation failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(summary)
}
