package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/campusforge/grading-api/internal/dto"
	"github.com/campusforge/grading-api/internal/models"
	"github.com/campusforge/grading-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type stubExerciseRepo struct {
	exercises map[uint]models.Exercise
}

func (s *stubExerciseRepo) GetByID(ctx context.Context, id uint) (models.Exercise, error) {
	exercise, ok := s.exercises[id]
	if !ok {
		return models.Exercise{}, gorm.ErrRecordNotFound
	}
	return exercise, nil
}

func (s *stubExerciseRepo) GetWithGradingConfig(ctx context.Context, id uint) (models.Exercise, error) {
	return s.GetByID(ctx, id)
}

func (s *stubExerciseRepo) Update(ctx context.Context, exercise *models.Exercise) error {
	s.exercises[exercise.ID] = *exercise
	return nil
}

type stubTestCaseRepo struct {
	testCases  []models.TestCase
	saveCalls  int
	resetCalls int
}

func (s *stubTestCaseRepo) ListByExercise(ctx context.Context, exerciseID uint) ([]models.TestCase, error) {
	var matched []models.TestCase
	for _, tc := range s.testCases {
		if tc.ExerciseID == exerciseID {
			matched = append(matched, tc)
		}
	}
	return matched, nil
}

func (s *stubTestCaseRepo) SaveAll(ctx context.Context, testCases []models.TestCase) error {
	s.saveCalls++
	for _, updated := range testCases {
		for i := range s.testCases {
			if s.testCases[i].ID == updated.ID {
				s.testCases[i] = updated
			}
		}
	}
	return nil
}

func (s *stubTestCaseRepo) ResetForExercise(ctx context.Context, exerciseID uint) error {
	s.resetCalls++
	for i := range s.testCases {
		if s.testCases[i].ExerciseID != exerciseID {
			continue
		}
		s.testCases[i].Weight = 1
		s.testCases[i].BonusMultiplier = 1
		s.testCases[i].BonusPoints = 0
	}
	return nil
}

type stubCategoryRepo struct {
	categories []models.StaticCodeAnalysisCategory
	saveCalls  int
	replaced   []models.StaticCodeAnalysisCategory
}

func (s *stubCategoryRepo) ListByExercise(ctx context.Context, exerciseID uint) ([]models.StaticCodeAnalysisCategory, error) {
	var matched []models.StaticCodeAnalysisCategory
	for _, category := range s.categories {
		if category.ExerciseID == exerciseID {
			matched = append(matched, category)
		}
	}
	return matched, nil
}

func (s *stubCategoryRepo) SaveAll(ctx context.Context, categories []models.StaticCodeAnalysisCategory) error {
	s.saveCalls++
	for _, updated := range categories {
		for i := range s.categories {
			if s.categories[i].ID == updated.ID {
				s.categories[i] = updated
			}
		}
	}
	return nil
}

func (s *stubCategoryRepo) ReplaceForExercise(ctx context.Context, exerciseID uint, categories []models.StaticCodeAnalysisCategory) error {
	kept := s.categories[:0]
	for _, category := range s.categories {
		if category.ExerciseID != exerciseID {
			kept = append(kept, category)
		}
	}
	nextID := uint(1000)
	for i := range categories {
		categories[i].ID = nextID
		nextID++
		kept = append(kept, categories[i])
	}
	s.categories = kept
	s.replaced = categories
	return nil
}

type stubParticipationRepo struct {
	participations map[uint]models.Participation
}

func (s *stubParticipationRepo) GetByID(ctx context.Context, id uint) (models.Participation, error) {
	participation, ok := s.participations[id]
	if !ok {
		return models.Participation{}, gorm.ErrRecordNotFound
	}
	return participation, nil
}

func (s *stubParticipationRepo) List(ctx context.Context, filter repository.ParticipationFilter) ([]models.Participation, error) {
	var matched []models.Participation
	for _, participation := range s.participations {
		if filter.ExerciseID != 0 && participation.ExerciseID != filter.ExerciseID {
			continue
		}
		if t := filter.ExcludeIndividualDueDateAfter; t != nil &&
			participation.IsStudent() &&
			participation.IndividualDueDate != nil &&
			participation.IndividualDueDate.After(*t) {
			continue
		}
		matched = append(matched, participation)
	}
	return matched, nil
}

func (s *stubParticipationRepo) Create(ctx context.Context, participation *models.Participation) error {
	participation.ID = uint(len(s.participations) + 1)
	s.participations[participation.ID] = *participation
	return nil
}

type stubSubmissionRepo struct {
	submissions map[uint]models.Submission
	nextID      uint
	updateCalls int
}

func (s *stubSubmissionRepo) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	submission, ok := s.submissions[id]
	if !ok {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}

func (s *stubSubmissionRepo) GetWithResults(ctx context.Context, id uint) (models.Submission, error) {
	return s.GetByID(ctx, id)
}

func (s *stubSubmissionRepo) FindByParticipationAndCommit(ctx context.Context, participationID uint, commitHash string) (models.Submission, error) {
	for _, submission := range s.submissions {
		if submission.ParticipationID == participationID && submission.CommitHash == commitHash {
			return submission, nil
		}
	}
	return models.Submission{}, gorm.ErrRecordNotFound
}

func (s *stubSubmissionRepo) LatestByParticipation(ctx context.Context, participationID uint) (models.Submission, error) {
	var latest models.Submission
	found := false
	for _, submission := range s.submissions {
		if submission.ParticipationID != participationID {
			continue
		}
		if !found || submission.ID > latest.ID {
			latest = submission
			found = true
		}
	}
	if !found {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (s *stubSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	s.nextID++
	submission.ID = s.nextID + 100
	s.submissions[submission.ID] = *submission
	return nil
}

func (s *stubSubmissionRepo) Update(ctx context.Context, submission *models.Submission) error {
	s.updateCalls++
	s.submissions[submission.ID] = *submission
	return nil
}

type stubResultRepo struct {
	results           map[uint]models.Result
	nextResultID      uint
	nextFeedbackID    uint
	createManualCalls int
	manualErr         error
	replaceCalls      int
	replaceErrFor     map[uint]error
	deleted           []uint
	longFeedback      []models.LongFeedbackText
	latestAutomatic   []models.Result
}

func newStubResultRepo() *stubResultRepo {
	return &stubResultRepo{
		results:       make(map[uint]models.Result),
		replaceErrFor: make(map[uint]error),
	}
}

func (s *stubResultRepo) GetByID(ctx context.Context, id uint) (models.Result, error) {
	result, ok := s.results[id]
	if !ok {
		return models.Result{}, gorm.ErrRecordNotFound
	}
	return result, nil
}

func (s *stubResultRepo) Create(ctx context.Context, result *models.Result) error {
	s.nextResultID++
	result.ID = s.nextResultID + 500
	for i := range result.Feedback {
		s.nextFeedbackID++
		result.Feedback[i].ID = s.nextFeedbackID
		result.Feedback[i].ResultID = result.ID
	}
	s.results[result.ID] = *result
	return nil
}

func (s *stubResultRepo) CreateManualResult(ctx context.Context, result *models.Result) error {
	s.createManualCalls++
	if s.manualErr != nil {
		return s.manualErr
	}
	return s.Create(ctx, result)
}

func (s *stubResultRepo) Update(ctx context.Context, result *models.Result) error {
	s.results[result.ID] = *result
	return nil
}

func (s *stubResultRepo) ReplaceFeedback(ctx context.Context, result *models.Result, feedback []models.Feedback) error {
	if err := s.replaceErrFor[result.ID]; err != nil {
		return err
	}
	s.replaceCalls++
	for i := range feedback {
		s.nextFeedbackID++
		feedback[i].ID = s.nextFeedbackID
		feedback[i].ResultID = result.ID
	}
	result.Feedback = feedback
	s.results[result.ID] = *result
	return nil
}

func (s *stubResultRepo) Delete(ctx context.Context, id uint) error {
	delete(s.results, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubResultRepo) ListLatestAutomaticByExercise(ctx context.Context, exerciseID uint) ([]models.Result, error) {
	return s.latestAutomatic, nil
}

func (s *stubResultRepo) SaveLongFeedback(ctx context.Context, text *models.LongFeedbackText) error {
	text.ID = uint(len(s.longFeedback) + 1)
	s.longFeedback = append(s.longFeedback, *text)
	return nil
}

func (s *stubResultRepo) GetLongFeedback(ctx context.Context, feedbackID uint) (models.LongFeedbackText, error) {
	for _, text := range s.longFeedback {
		if text.FeedbackID == feedbackID {
			return text, nil
		}
	}
	return models.LongFeedbackText{}, gorm.ErrRecordNotFound
}

type recordingNotifier struct {
	mu            sync.Mutex
	published     []dto.ResultResponse
	duplicates    [][]string
	configChanged []uint
}

func (r *recordingNotifier) Start(ctx context.Context) {}

func (r *recordingNotifier) PublishResult(ctx context.Context, exerciseID, participationID uint, result dto.ResultResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, result)
}

func (r *recordingNotifier) NotifyDuplicateTestCase(ctx context.Context, exerciseID uint, testNames []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.duplicates = append(r.duplicates, testNames)
}

func (r *recordingNotifier) NotifyGradingConfigChanged(ctx context.Context, exerciseID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configChanged = append(r.configChanged, exerciseID)
}

func (r *recordingNotifier) SubscribeParticipation(participationID uint) (<-chan dto.GradingEventResponse, func()) {
	return make(chan dto.GradingEventResponse), func() {}
}

func (r *recordingNotifier) SubscribeExercise(exerciseID uint) (<-chan dto.GradingEventResponse, func()) {
	return make(chan dto.GradingEventResponse), func() {}
}
