// Package service drives the prediction pipeline through its stages and
// exposes the read-only accessors the HTTP API depends on.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	repository "github.com/okian/pitwall/internal/adapters/repository"
	"github.com/okian/pitwall/internal/domain/race"
	"github.com/okian/pitwall/internal/domain/table"
	"github.com/okian/pitwall/internal/domain/types"
	"github.com/okian/pitwall/internal/evaluation"
	"github.com/okian/pitwall/internal/features"
	"github.com/okian/pitwall/internal/featurestore"
	"github.com/okian/pitwall/internal/ingest"
	"github.com/okian/pitwall/internal/models"
	"github.com/okian/pitwall/pkg/logger"
	"github.com/okian/pitwall/pkg/metrics"
)

// State names a pipeline stage. The controller is always in exactly one.
type State string

const (
	StateIdle     State = "idle"
	StateIngest   State = "ingest"
	StateEngineer State = "engineer"
	StateStore    State = "store"
	StateElo      State = "elo"
	StateBaseline State = "baseline"
	StateEnsemble State = "ensemble"
	StateEvaluate State = "evaluate"
	StateComplete State = "complete"
)

// modelsDir holds rating snapshots under the feature store base.
const modelsDir = "models"

// States lists the stages in execution order.
var States = []State{StateIngest, StateEngineer, StateStore, StateElo, StateBaseline, StateEnsemble, StateEvaluate}

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithYears sets the seasons to ingest.
func WithYears(years ...int) Option {
	return func(c *Controller) {
		c.years = append([]int(nil), years...)
	}
}

// WithFeatureSetName sets the name the store stage saves under.
func WithFeatureSetName(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.featureSetName = name
		}
	}
}

// WithTestSize sets the chronological test fraction.
func WithTestSize(f float64) Option {
	return func(c *Controller) {
		c.trainOpts.TestSize = f
	}
}

// WithRatingOptions configures every rating model the controller builds.
func WithRatingOptions(opts ...models.RatingOption) Option {
	return func(c *Controller) {
		c.ratingOpts = append(c.ratingOpts, opts...)
	}
}

// WithBoard sets the board behind the published rankings.
func WithBoard(b repository.Store) Option {
	return func(c *Controller) {
		if b != nil {
			c.board = b
		}
	}
}

// WithBaselineColumn sets the feature the baseline model predicts from.
func WithBaselineColumn(col string) Option {
	return func(c *Controller) {
		if col != "" {
			c.baselineColumn = col
		}
	}
}

// WithEnsembleWeights weighs the (rating, baseline) ensemble members. nil
// means equal weights.
func WithEnsembleWeights(w []float64) Option {
	return func(c *Controller) {
		c.ensembleWeights = append([]float64(nil), w...)
		if len(w) == 0 {
			c.ensembleWeights = nil
		}
	}
}

// WithEngineer replaces the feature engineer.
func WithEngineer(e *features.Engineer) Option {
	return func(c *Controller) {
		if e != nil {
			c.engineer = e
		}
	}
}

// WithEvaluator replaces the evaluator.
func WithEvaluator(e *evaluation.Evaluator) Option {
	return func(c *Controller) {
		if e != nil {
			c.evaluator = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(c *Controller) {
		if lg != nil {
			c.logger = lg
		}
	}
}

// Controller runs the pipeline stages and keeps every stage's output so a
// single stage can be inspected or run again.
//
// Stage execution is serialized by runMu. Readers take mu and may observe
// the controller between stages of a run in progress.
type Controller struct {
	mu    sync.RWMutex
	runMu sync.Mutex

	loader    *ingest.Loader
	engineer  *features.Engineer
	store     *featurestore.Store
	evaluator *evaluation.Evaluator

	years           []int
	featureSetName  string
	trainOpts       featurestore.TrainingOptions
	ratingOpts      []models.RatingOption
	board           repository.Store
	baselineColumn  string
	ensembleWeights []float64

	runID       string
	current     State
	lastErr     error
	dataset     *ingest.Dataset
	frame       *table.Frame
	featurePath string
	modelPath   string
	split       *featurestore.Split
	models      map[string]models.Model
	predictions map[string][]float64
	history     []types.StageResult

	logger logger.Logger
}

// New creates an idle controller reading from loader and writing to store.
func New(loader *ingest.Loader, store *featurestore.Store, opts ...Option) *Controller {
	c := &Controller{
		loader:         loader,
		store:          store,
		engineer:       features.NewEngineer(),
		evaluator:      evaluation.NewEvaluator(),
		featureSetName: "race_features",
		trainOpts:      featurestore.DefaultTrainingOptions(),
		baselineColumn: models.DefaultBaselineColumn,
		current:        StateIdle,
		models:         map[string]models.Model{},
		predictions:    map[string][]float64{},
		logger:         logger.NamedOrNop("controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.board == nil {
		c.board = repository.NewBoard(repository.WithMetrics(true))
	}
	return c
}

// RunIngest loads every configured season.
func (c *Controller) RunIngest(ctx context.Context) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.run(ctx, StateIngest, c.ingest)
}

// RunEngineer builds the feature frame from the ingested rows.
func (c *Controller) RunEngineer(ctx context.Context) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.run(ctx, StateEngineer, c.engineerFeatures)
}

// RunStore saves the feature frame as a new version, reads it back and
// splits it into train and test sets.
func (c *Controller) RunStore(ctx context.Context) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.run(ctx, StateStore, c.storeFeatures)
}

// RunElo trains the rating model whose ratings back the published rankings.
func (c *Controller) RunElo(ctx context.Context) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.run(ctx, StateElo, c.trainElo)
}

// RunBaseline trains the baseline model.
func (c *Controller) RunBaseline(ctx context.Context) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.run(ctx, StateBaseline, c.trainBaseline)
}

// RunEnsemble trains an ensemble of a fresh rating model and a baseline.
func (c *Controller) RunEnsemble(ctx context.Context) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.run(ctx, StateEnsemble, c.trainEnsemble)
}

// RunEvaluate scores every trained model on the test split.
func (c *Controller) RunEvaluate(ctx context.Context) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.run(ctx, StateEvaluate, c.evaluate)
}

// RunCompletePipeline runs every stage in order under a new run id and stops
// at the first failure, leaving the controller in the failed stage.
func (c *Controller) RunCompletePipeline(ctx context.Context) bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	id := uuid.NewString()
	c.mu.Lock()
	c.runID = id
	c.history = nil
	c.mu.Unlock()
	c.evaluator.Reset()

	start := time.Now()
	c.logger.Info(ctx, "pipeline started", logger.String("run_id", id), logger.Any("years", c.years))
	steps := []struct {
		state State
		fn    func(context.Context) error
	}{
		{StateIngest, c.ingest},
		{StateEngineer, c.engineerFeatures},
		{StateStore, c.storeFeatures},
		{StateElo, c.trainElo},
		{StateBaseline, c.trainBaseline},
		{StateEnsemble, c.trainEnsemble},
		{StateEvaluate, c.evaluate},
	}
	for _, st := range steps {
		if !c.run(ctx, st.state, st.fn) {
			c.logger.Error(ctx, "pipeline stopped",
				logger.String("run_id", id),
				logger.String("state", string(st.state)),
				logger.Duration("took", time.Since(start)))
			return false
		}
	}
	c.setState(StateComplete)
	c.logger.Info(ctx, "pipeline complete", logger.String("run_id", id), logger.Duration("took", time.Since(start)))
	return true
}

// Err returns the error of the most recent stage, nil if it succeeded.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.current
	c.current = s
	c.mu.Unlock()
	c.logger.Debug(context.Background(), "state transition", logger.String("from", string(prev)), logger.String("to", string(s)))
}

// run executes one stage and records its outcome.
func (c *Controller) run(ctx context.Context, state State, fn func(context.Context) error) bool {
	c.setState(state)
	start := time.Now()
	err := fn(ctx)
	took := time.Since(start)

	res := types.StageResult{State: string(state), OK: err == nil, StartedAt: start, DurationMS: took.Milliseconds()}
	outcome := "success"
	if err != nil {
		res.Error = err.Error()
		outcome = "failure"
		metrics.RecordErrorByComponent("controller", string(state))
	}
	c.mu.Lock()
	c.history = append(c.history, res)
	c.lastErr = err
	c.mu.Unlock()
	metrics.RecordStageRun(string(state), outcome, float64(took.Milliseconds()))

	if err != nil {
		c.logger.Error(ctx, "stage failed", logger.String("state", string(state)), logger.Duration("took", took), logger.Error(err))
		return false
	}
	c.logger.Info(ctx, "stage finished", logger.String("state", string(state)), logger.Duration("took", took))
	return true
}

func (c *Controller) ingest(ctx context.Context) error {
	ds, err := c.loader.LoadMultiSeasonData(ctx, c.years)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.dataset = ds
	c.mu.Unlock()
	c.logger.Info(ctx, "data loaded",
		logger.Int("race_rows", len(ds.Races)),
		logger.Int("qualifying_rows", len(ds.Qualifying)),
		logger.Int("races", countRaces(ds.Races)))
	return nil
}

func (c *Controller) engineerFeatures(ctx context.Context) error {
	c.mu.RLock()
	ds := c.dataset
	c.mu.RUnlock()
	if ds == nil {
		return fmt.Errorf("%w: %s needs %s", ErrStageNotReady, StateEngineer, StateIngest)
	}
	f, err := c.engineer.EngineerAll(ctx, ds.Races, ds.Qualifying)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.frame = f
	c.mu.Unlock()
	return nil
}

func (c *Controller) storeFeatures(ctx context.Context) error {
	c.mu.RLock()
	f := c.frame
	c.mu.RUnlock()
	if f == nil {
		return fmt.Errorf("%w: %s needs %s", ErrStageNotReady, StateStore, StateEngineer)
	}
	path, err := c.store.Save(ctx, f, c.featureSetName, map[string]any{
		"years":     c.years,
		"test_size": c.trainOpts.TestSize,
		"run_id":    c.RunID(),
	})
	if err != nil {
		return err
	}
	saved, err := c.store.Load(ctx, c.featureSetName, featurestore.Latest)
	if err != nil {
		return err
	}
	split, err := featurestore.PrepareTrainingData(saved, c.trainOpts)
	if err != nil {
		return err
	}
	// models and scores from the previous split no longer line up with it
	c.mu.Lock()
	c.featurePath = path
	c.split = split
	c.models = map[string]models.Model{}
	c.predictions = map[string][]float64{}
	c.modelPath = ""
	c.mu.Unlock()
	c.evaluator.Reset()
	c.logger.Info(ctx, "training data prepared",
		logger.Int("train_rows", len(split.YTrain)),
		logger.Int("test_rows", len(split.YTest)),
		logger.Int("features", len(split.FeatureColumns)))
	return nil
}

// trainElo trains on a private board and replaces the published rankings
// only once training, prediction and the snapshot have succeeded.
func (c *Controller) trainElo(ctx context.Context) error {
	opts := append(append([]models.RatingOption(nil), c.ratingOpts...), models.WithBoard(repository.NewBoard()))
	m := models.NewRatingModel(opts...)
	pred, err := c.fit(ctx, StateElo, m)
	if err != nil {
		return err
	}
	c.mu.RLock()
	path := ratingSnapshotPath(c.store.Base(), c.featurePath)
	c.mu.RUnlock()
	if err := m.Save(ctx, path); err != nil {
		return err
	}
	if err := c.publish(ctx, m.Ratings()); err != nil {
		return err
	}
	c.commit(m, pred)
	c.mu.Lock()
	c.modelPath = path
	c.mu.Unlock()
	return nil
}

func (c *Controller) trainBaseline(ctx context.Context) error {
	m := models.NewBaseline(models.WithColumn(c.baselineColumn))
	pred, err := c.fit(ctx, StateBaseline, m)
	if err != nil {
		return err
	}
	c.commit(m, pred)
	return nil
}

// trainEnsemble builds its own rating model on a private board so the
// published rankings stay those of the standalone rating model.
func (c *Controller) trainEnsemble(ctx context.Context) error {
	opts := append(append([]models.RatingOption(nil), c.ratingOpts...), models.WithBoard(repository.NewBoard()))
	members := []models.Model{
		models.NewRatingModel(opts...),
		models.NewBaseline(models.WithColumn(c.baselineColumn)),
	}
	ens, err := models.NewEnsemble(members, c.ensembleWeights)
	if err != nil {
		return err
	}
	pred, err := c.fit(ctx, StateEnsemble, ens)
	if err != nil {
		return err
	}
	c.commit(ens, pred)
	return nil
}

// fit trains m on the train split and predicts the test split.
func (c *Controller) fit(ctx context.Context, state State, m models.Model) ([]float64, error) {
	c.mu.RLock()
	split := c.split
	c.mu.RUnlock()
	if split == nil {
		return nil, fmt.Errorf("%w: %s needs %s", ErrStageNotReady, state, StateStore)
	}
	x, err := models.PrepareInput(m, split.XTrain, split.MetaTrain)
	if err != nil {
		return nil, err
	}
	if err := m.Train(ctx, x, split.YTrain); err != nil {
		return nil, fmt.Errorf("train %s: %w", m.Name(), err)
	}
	xt, err := models.PrepareInput(m, split.XTest, split.MetaTest)
	if err != nil {
		return nil, err
	}
	pred, err := m.Predict(ctx, xt)
	if err != nil {
		return nil, fmt.Errorf("predict %s: %w", m.Name(), err)
	}
	c.logger.Info(ctx, "model trained",
		logger.String("model", m.Name()),
		logger.Int("train_rows", len(split.YTrain)),
		logger.Int("predictions", len(pred)))
	return pred, nil
}

// commit records a trained model and its test predictions.
func (c *Controller) commit(m models.Model, pred []float64) {
	c.mu.Lock()
	c.models[m.Name()] = m
	c.predictions[m.Name()] = pred
	c.mu.Unlock()
}

// publish replaces the contents of the rankings board.
func (c *Controller) publish(ctx context.Context, ratings map[string]float64) error {
	c.board.Reset(ctx)
	for driver, r := range ratings {
		if err := c.board.Set(ctx, driver, r); err != nil {
			return fmt.Errorf("publish rating of %s: %w", driver, err)
		}
	}
	return nil
}

// ratingSnapshotPath places the rating snapshot next to the feature set it
// was trained on: <base>/models/<feature file stem>_elo.json.
func ratingSnapshotPath(base, featurePath string) string {
	stem := strings.TrimSuffix(filepath.Base(featurePath), filepath.Ext(featurePath))
	return filepath.Join(base, modelsDir, stem+"_elo.json")
}

func (c *Controller) evaluate(ctx context.Context) error {
	c.mu.RLock()
	split := c.split
	preds := make(map[string][]float64, len(c.predictions))
	for k, v := range c.predictions {
		preds[k] = v
	}
	c.mu.RUnlock()
	if split == nil || len(preds) == 0 {
		return fmt.Errorf("%w: %s needs a trained model", ErrStageNotReady, StateEvaluate)
	}
	if _, err := c.evaluator.EvaluateMultipleModels(ctx, split.YTest, preds); err != nil {
		return err
	}
	if name, mae, err := c.evaluator.BestModel(evaluation.MetricMAE); err == nil {
		c.logger.Info(ctx, "best model", logger.String("model", name), logger.Float64("mae", mae))
	}
	return nil
}

// RunID returns the id of the latest complete-pipeline run.
func (c *Controller) RunID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runID
}

// Status returns a snapshot of the pipeline.
func (c *Controller) Status() types.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := types.Status{
		State:           string(c.current),
		RunID:           c.runID,
		DataLoaded:      c.dataset != nil,
		FeaturesCreated: c.frame != nil,
		ModelsTrained:   make([]string, 0, len(c.models)),
		FeatureSetPath:  c.featurePath,
		ModelPath:       c.modelPath,
		Stages:          append([]types.StageResult{}, c.history...),
	}
	for name, m := range c.models {
		if m.Trained() {
			st.ModelsTrained = append(st.ModelsTrained, name)
		}
	}
	sort.Strings(st.ModelsTrained)
	if c.dataset != nil {
		st.NRows = len(c.dataset.Races)
		st.NRaces = countRaces(c.dataset.Races)
	}
	switch {
	case c.split != nil:
		st.NFeatures = len(c.split.FeatureColumns)
	case c.frame != nil:
		st.NFeatures = len(c.frame.Columns())
	}
	return st
}

// Rankings returns the best limit drivers of the rating model. A limit below
// one returns every rated driver.
func (c *Controller) Rankings(ctx context.Context, limit int) ([]types.RatingEntry, error) {
	if _, err := c.ratingModel(); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = c.board.Count(ctx)
		if limit == 0 {
			return []types.RatingEntry{}, nil
		}
	}
	entries, err := c.board.TopN(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]types.RatingEntry, len(entries))
	for i, e := range entries {
		out[i] = types.RatingEntry{Rank: e.Rank, DriverID: e.DriverID, Rating: e.Rating}
	}
	return out, nil
}

// Rank returns one driver's line of the rating table.
func (c *Controller) Rank(ctx context.Context, driver string) (types.RatingEntry, error) {
	if _, err := c.ratingModel(); err != nil {
		return types.RatingEntry{}, err
	}
	e, err := c.board.Rank(ctx, driver)
	if err != nil {
		return types.RatingEntry{}, fmt.Errorf("%s: %w", driver, err)
	}
	return types.RatingEntry{Rank: e.Rank, DriverID: e.DriverID, Rating: e.Rating}, nil
}

// HeadToHead returns the rating model's pairwise win probabilities.
func (c *Controller) HeadToHead(a, b string) (types.HeadToHead, error) {
	m, err := c.ratingModel()
	if err != nil {
		return types.HeadToHead{}, err
	}
	h := m.HeadToHead(a, b)
	return types.HeadToHead{
		DriverA: h.DriverA, DriverB: h.DriverB,
		ProbA: h.ProbA, ProbB: h.ProbB,
		RatingA: h.RatingA, RatingB: h.RatingB,
	}, nil
}

// CompareModels returns the evaluated models, lowest MAE first.
func (c *Controller) CompareModels() []types.ModelComparison {
	rows := c.evaluator.CompareModels()
	out := make([]types.ModelComparison, len(rows))
	for i, r := range rows {
		out[i] = types.ModelComparison{Model: r.Model, Metrics: r.Metrics}
	}
	return out
}

// Model returns a trained model by name.
func (c *Controller) Model(name string) (models.Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return m, nil
}

// Predictions returns a model's test-split predictions next to the actual
// positions, in test-split order.
func (c *Controller) Predictions(_ context.Context, name string) ([]types.Prediction, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pred, ok := c.predictions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	if c.split == nil || len(pred) != len(c.split.YTest) || c.split.MetaTest.Len() != len(pred) {
		return nil, fmt.Errorf("%w: %s predictions do not match the current test split", ErrStageNotReady, name)
	}
	meta := c.split.MetaTest
	out := make([]types.Prediction, len(pred))
	for i := range pred {
		out[i] = types.Prediction{
			Driver:    meta.Text(race.ColDriver, i),
			Team:      meta.Text(race.ColTeam, i),
			Year:      int(meta.Float(race.ColYear, i)),
			Round:     int(meta.Float(race.ColRound, i)),
			EventName: meta.Text(race.ColEventName, i),
			Actual:    c.split.YTest[i],
			Predicted: pred[i],
		}
	}
	return out, nil
}

// Evaluator returns the evaluator holding the latest results.
func (c *Controller) Evaluator() *evaluation.Evaluator { return c.evaluator }

func (c *Controller) ratingModel() (*models.RatingModel, error) {
	m, err := c.Model(models.RatingModelName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s has not run", ErrStageNotReady, StateElo)
	}
	rm, ok := m.(*models.RatingModel)
	if !ok {
		return nil, errors.New("rating model has an unexpected type")
	}
	return rm, nil
}

func countRaces(rows []race.Result) int {
	type key struct{ year, round int }
	seen := map[key]struct{}{}
	for _, r := range rows {
		seen[key{r.Year, r.Round}] = struct{}{}
	}
	return len(seen)
}
