package ontology

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"examintel/internal/audit"
	"examintel/internal/masterdata"
)

var tracer = otel.Tracer("examintel/internal/ontology")

type Service struct {
	store Store
	log   *zap.Logger
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

func (s *Service) ListUnresolvedSignals(ctx context.Context, lessonID int64, minOccurrences int) ([]UnresolvedTopicSignal, error) {
	ctx, span := tracer.Start(ctx, "ontology.ListUnresolvedSignals")
	defer span.End()

	if lessonID < 0 {
		return nil, validationf("lessonId must be positive")
	}
	if minOccurrences < 1 {
		minOccurrences = 1
	}
	span.SetAttributes(attribute.Int64("lesson.id", lessonID), attribute.Int("min_occurrences", minOccurrences))

	out, err := s.store.ListUnresolvedSignals(ctx, lessonID, minOccurrences)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list unresolved signals")
		return nil, fmt.Errorf("list unresolved signals: %w", err)
	}
	if out == nil {
		out = []UnresolvedTopicSignal{}
	}
	span.SetAttributes(attribute.Int("signals", len(out)))
	return out, nil
}

// ResolveTopic maps, creates or ignores the suggestion behind one signal
// group and rewrites every question in it. Validation reads happen before the
// first write; any failure rolls back the taxonomy change, the question
// update and the audit row together.
func (s *Service) ResolveTopic(ctx context.Context, req ResolveTopicRequest, adminUserID int64) (*ResolveTopicResponse, error) {
	ctx, span := tracer.Start(ctx, "ontology.ResolveTopic")
	defer span.End()

	req.normalize()
	if err := req.validateShape(); err != nil {
		return nil, err
	}
	if adminUserID <= 0 {
		return nil, validationf("admin user id is required")
	}

	key := req.signalKey()
	resolutionID := uuid.NewString()
	span.SetAttributes(
		attribute.String("resolution.id", resolutionID),
		attribute.Int64("lesson.id", req.LessonID),
		attribute.String("topic.action", string(req.TopicAction)),
		attribute.String("subtopic.action", string(req.SubtopicAction)),
	)

	var resp *ResolveTopicResponse
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.LockSignal(ctx, key); err != nil {
			return err
		}

		plan, err := planResolution(ctx, tx, req)
		if err != nil {
			return err
		}

		questionIDs, err := tx.MatchingQuestionIDs(ctx, key)
		if err != nil {
			return err
		}

		upd := QuestionUpdate{}
		var topicRes *TopicResolution
		if plan.topic != nil {
			topicRes, err = plan.topic.apply(ctx, tx, &upd)
			if err != nil {
				return err
			}
		}
		var subRes *SubtopicResolution
		if plan.subtopic != nil {
			if topicRes != nil && topicRes.TopicID != nil && plan.subtopic.create != nil {
				plan.subtopic.create.TopicID = *topicRes.TopicID
			}
			subRes, err = plan.subtopic.apply(ctx, tx, &upd)
			if err != nil {
				return err
			}
		}

		if len(questionIDs) > 0 {
			if _, err := tx.ApplyResolution(ctx, questionIDs, upd); err != nil {
				return err
			}
		}

		if err := tx.WriteAudit(ctx, auditEntry(resolutionID, adminUserID, req, topicRes, subRes, questionIDs)); err != nil {
			return err
		}

		resp = &ResolveTopicResponse{
			Success:               true,
			AffectedQuestionCount: len(questionIDs),
			TopicResolution:       topicRes,
			SubtopicResolution:    subRes,
			Message:               resolutionMessage(len(questionIDs)),
		}
		return nil
	})
	if err != nil {
		if !IsDomainError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolve topic")
			s.log.Error("topic resolution failed",
				zap.String("resolution_id", resolutionID),
				zap.Int64("lesson_id", req.LessonID),
				zap.Error(err),
			)
			return nil, fmt.Errorf("resolve topic: %w", err)
		}
		return nil, err
	}

	s.log.Info("topic signal resolved",
		zap.String("resolution_id", resolutionID),
		zap.Int64("admin_user_id", adminUserID),
		zap.Int64("lesson_id", req.LessonID),
		zap.String("topic_action", string(req.TopicAction)),
		zap.String("subtopic_action", string(req.SubtopicAction)),
		zap.Int("affected_questions", resp.AffectedQuestionCount),
	)
	return resp, nil
}

func resolutionMessage(affected int) string {
	if affected == 0 {
		return "Resolution applied; no questions matched the signal"
	}
	return fmt.Sprintf("Resolution applied to %d question(s)", affected)
}

func (r *ResolveTopicRequest) normalize() {
	r.TopicAction = Action(strings.ToUpper(strings.TrimSpace(string(r.TopicAction))))
	r.SubtopicAction = Action(strings.ToUpper(strings.TrimSpace(string(r.SubtopicAction))))
	r.AdminNotes = strings.TrimSpace(r.AdminNotes)
}

// validateShape checks action/payload pairing without touching storage.
func (r ResolveTopicRequest) validateShape() error {
	if r.LessonID <= 0 {
		return validationf("lessonId is required")
	}
	if r.UnmatchedTopic == nil && r.UnmatchedSubtopic == nil {
		return validationf("unmatchedTopic or unmatchedSubtopic is required to identify the signal")
	}
	if r.TopicAction == "" && r.SubtopicAction == "" {
		return validationf("topicAction or subtopicAction is required")
	}

	if r.TopicAction != "" {
		if !r.TopicAction.valid() {
			return validationf("unknown topicAction %q", r.TopicAction)
		}
		switch r.TopicAction {
		case ActionMapExisting:
			if r.MapToExistingTopicID == nil || *r.MapToExistingTopicID <= 0 {
				return validationf("mapToExistingTopicId is required for MAP_EXISTING")
			}
		case ActionCreateNew:
			if r.CreateNewTopic == nil || strings.TrimSpace(r.CreateNewTopic.Name) == "" {
				return validationf("createNewTopic.name is required for CREATE_NEW")
			}
		case ActionIgnore:
			if r.UnmatchedTopic == nil {
				return validationf("unmatchedTopic is required to IGNORE a topic suggestion")
			}
		}
	}

	if r.SubtopicAction != "" {
		if !r.SubtopicAction.valid() {
			return validationf("unknown subtopicAction %q", r.SubtopicAction)
		}
		switch r.SubtopicAction {
		case ActionMapExisting:
			if r.MapToExistingSubtopicID == nil || *r.MapToExistingSubtopicID <= 0 {
				return validationf("mapToExistingSubtopicId is required for MAP_EXISTING")
			}
		case ActionCreateNew:
			if r.CreateNewSubtopic == nil || strings.TrimSpace(r.CreateNewSubtopic.Name) == "" {
				return validationf("createNewSubtopic.name is required for CREATE_NEW")
			}
			if !r.topicResolves() && r.CreateNewSubtopic.TopicID <= 0 {
				return validationf("createNewSubtopic.topicId is required when no topic is resolved")
			}
		case ActionIgnore:
			if r.UnmatchedSubtopic == nil {
				return validationf("unmatchedSubtopic is required to IGNORE a subtopic suggestion")
			}
		}
	}
	return nil
}

func (r ResolveTopicRequest) topicResolves() bool {
	return r.TopicAction == ActionMapExisting || r.TopicAction == ActionCreateNew
}

func (r ResolveTopicRequest) signalKey() SignalKey {
	return SignalKey{LessonID: r.LessonID, Topic: r.UnmatchedTopic, Subtopic: r.UnmatchedSubtopic}
}

type resolutionPlan struct {
	topic    *topicStep
	subtopic *subtopicStep
}

type topicStep struct {
	action   Action
	existing *masterdata.Topic
	create   *masterdata.Topic
}

type subtopicStep struct {
	action   Action
	existing *masterdata.Subtopic
	// parentTopicID is set when an existing subtopic is mapped without a
	// topic resolution; questions lacking a topic inherit it.
	parentTopicID *int64
	create        *masterdata.Subtopic
}

// planResolution performs every lookup and scope check. It never writes.
func planResolution(ctx context.Context, tx Tx, req ResolveTopicRequest) (*resolutionPlan, error) {
	lesson, err := tx.GetLesson(ctx, req.LessonID)
	if err != nil {
		return nil, err
	}
	if lesson == nil {
		return nil, notFoundf("lesson %d not found", req.LessonID)
	}

	plan := &resolutionPlan{}
	if req.TopicAction != "" {
		step, err := planTopic(ctx, tx, req)
		if err != nil {
			return nil, err
		}
		plan.topic = step
	}
	if req.SubtopicAction != "" {
		step, err := planSubtopic(ctx, tx, req, plan.topic)
		if err != nil {
			return nil, err
		}
		plan.subtopic = step
	}
	return plan, nil
}

func planTopic(ctx context.Context, tx Tx, req ResolveTopicRequest) (*topicStep, error) {
	step := &topicStep{action: req.TopicAction}
	switch req.TopicAction {
	case ActionMapExisting:
		t, err := loadAssignableTopic(ctx, tx, *req.MapToExistingTopicID, req.LessonID)
		if err != nil {
			return nil, err
		}
		step.existing = t

	case ActionCreateNew:
		in := req.CreateNewTopic
		lessonID := in.LessonID
		if lessonID == 0 {
			lessonID = req.LessonID
		}
		if lessonID != req.LessonID {
			return nil, conflictf("createNewTopic.lessonId %d does not match lessonId %d", lessonID, req.LessonID)
		}
		name := strings.TrimSpace(in.Name)
		exists, err := tx.TopicNameExists(ctx, lessonID, name)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, conflictf("topic %q already exists in lesson %d", name, lessonID)
		}
		step.create = &masterdata.Topic{
			LessonID:    lessonID,
			Name:        name,
			DisplayName: strings.TrimSpace(in.DisplayName),
			Description: provenance(in.Description, req.UnmatchedTopic),
			Status:      masterdata.StatusActive,
		}
	}
	return step, nil
}

func planSubtopic(ctx context.Context, tx Tx, req ResolveTopicRequest, topic *topicStep) (*subtopicStep, error) {
	step := &subtopicStep{action: req.SubtopicAction}

	// A topic resolved in this call is the parent scope for the subtopic,
	// whatever the caller supplied.
	var (
		resolvedTopicID *int64
		pendingTopic    bool
	)
	if topic != nil {
		switch {
		case topic.existing != nil:
			resolvedTopicID = &topic.existing.ID
		case topic.create != nil:
			pendingTopic = true
		}
	}

	switch req.SubtopicAction {
	case ActionMapExisting:
		id := *req.MapToExistingSubtopicID
		st, err := tx.GetSubtopic(ctx, id)
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, notFoundf("subtopic %d not found", id)
		}
		if !st.Status.Assignable() {
			return nil, conflictf("subtopic %d is %s and cannot receive mappings", id, st.Status)
		}
		switch {
		case pendingTopic:
			return nil, conflictf("subtopic %d cannot belong to the topic being created", id)
		case resolvedTopicID != nil:
			if st.TopicID != *resolvedTopicID {
				return nil, conflictf("subtopic %d does not belong to topic %d", id, *resolvedTopicID)
			}
		default:
			parent, err := loadAssignableTopic(ctx, tx, st.TopicID, req.LessonID)
			if err != nil {
				return nil, err
			}
			step.parentTopicID = &parent.ID
		}
		step.existing = st

	case ActionCreateNew:
		in := req.CreateNewSubtopic
		name := strings.TrimSpace(in.Name)
		var parentID int64
		switch {
		case pendingTopic:
		case resolvedTopicID != nil:
			parentID = *resolvedTopicID
		default:
			parent, err := loadAssignableTopic(ctx, tx, in.TopicID, req.LessonID)
			if err != nil {
				return nil, err
			}
			parentID = parent.ID
			step.parentTopicID = &parent.ID
		}
		if parentID > 0 {
			exists, err := tx.SubtopicNameExists(ctx, parentID, name)
			if err != nil {
				return nil, err
			}
			if exists {
				return nil, conflictf("subtopic %q already exists in topic %d", name, parentID)
			}
		}
		step.create = &masterdata.Subtopic{
			TopicID:     parentID,
			Name:        name,
			DisplayName: strings.TrimSpace(in.DisplayName),
			Description: provenance(in.Description, req.UnmatchedSubtopic),
			Status:      masterdata.StatusActive,
		}
	}
	return step, nil
}

func loadAssignableTopic(ctx context.Context, tx Tx, topicID, lessonID int64) (*masterdata.Topic, error) {
	t, err := tx.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, notFoundf("topic %d not found", topicID)
	}
	if t.LessonID != lessonID {
		return nil, conflictf("topic %d does not belong to lesson %d", topicID, lessonID)
	}
	if !t.Status.Assignable() {
		return nil, conflictf("topic %d is %s and cannot receive mappings", topicID, t.Status)
	}
	return t, nil
}

func provenance(description string, suggestion *string) string {
	description = strings.TrimSpace(description)
	if description != "" || suggestion == nil {
		return description
	}
	return fmt.Sprintf("Created from AI suggestion %q", *suggestion)
}

func (st *topicStep) apply(ctx context.Context, tx Tx, upd *QuestionUpdate) (*TopicResolution, error) {
	res := &TopicResolution{Action: st.action}
	switch st.action {
	case ActionMapExisting:
		id := st.existing.ID
		res.TopicID, res.TopicName = &id, st.existing.Name
	case ActionCreateNew:
		id, err := tx.InsertTopic(ctx, *st.create)
		if err != nil {
			return nil, err
		}
		res.TopicID, res.TopicName = &id, st.create.Name
	}
	upd.TopicID = res.TopicID
	upd.ClearTopic = true
	return res, nil
}

func (st *subtopicStep) apply(ctx context.Context, tx Tx, upd *QuestionUpdate) (*SubtopicResolution, error) {
	res := &SubtopicResolution{Action: st.action}
	switch st.action {
	case ActionMapExisting:
		id := st.existing.ID
		res.SubtopicID, res.SubtopicName = &id, st.existing.Name
	case ActionCreateNew:
		if st.create.TopicID <= 0 {
			return nil, fmt.Errorf("subtopic %q has no parent topic", st.create.Name)
		}
		id, err := tx.InsertSubtopic(ctx, *st.create)
		if err != nil {
			return nil, err
		}
		res.SubtopicID, res.SubtopicName = &id, st.create.Name
	}
	upd.SubtopicID = res.SubtopicID
	upd.ClearSubtopic = true
	if upd.TopicID == nil && res.SubtopicID != nil {
		upd.InheritTopicID = st.parentTopicID
	}
	return res, nil
}

func auditEntry(resolutionID string, adminUserID int64, req ResolveTopicRequest, topicRes *TopicResolution, subRes *SubtopicResolution, questionIDs []int64) audit.Entry {
	meta := map[string]any{
		"resolution_id":      resolutionID,
		"lesson_id":          req.LessonID,
		"unmatched_topic":    req.UnmatchedTopic,
		"unmatched_subtopic": req.UnmatchedSubtopic,
	}
	var modes []string
	if topicRes != nil {
		modes = append(modes, "TOPIC_"+string(topicRes.Action))
		meta["topic_action"] = topicRes.Action
		meta["topic_id"] = topicRes.TopicID
	}
	if subRes != nil {
		modes = append(modes, "SUBTOPIC_"+string(subRes.Action))
		meta["subtopic_action"] = subRes.Action
		meta["subtopic_id"] = subRes.SubtopicID
	}
	if req.AdminNotes != "" {
		meta["admin_notes"] = req.AdminNotes
	}

	return audit.Entry{
		AdminUserID: adminUserID,
		ActionType:  audit.ActionResolveTopic,
		ActionMode:  strings.Join(modes, "+"),
		AffectedIDs: questionIDs,
		Success:     true,
		ResultCount: len(questionIDs),
		Metadata:    meta,
	}
}
