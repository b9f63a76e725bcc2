// Package mutation runs create, update, patch and destroy requests against
// model metadata and reports their outcome as data.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bitechdev/ModelSpec/pkg/apierror"
	"github.com/bitechdev/ModelSpec/pkg/cache"
	"github.com/bitechdev/ModelSpec/pkg/common"
	"github.com/bitechdev/ModelSpec/pkg/logger"
	"github.com/bitechdev/ModelSpec/pkg/metadata"
	"github.com/bitechdev/ModelSpec/pkg/metrics"
	"github.com/bitechdev/ModelSpec/pkg/reflection"
	"github.com/bitechdev/ModelSpec/pkg/tracing"
)

// TypeAttribute is the attribute naming the subtype of a created object.
const TypeAttribute = "type"

// Request is one mutation. Target is the loaded object for update, patch
// and destroy; nil means it was not found.
type Request struct {
	Ctx    *common.RequestContext
	Model  *metadata.Model
	Body   []byte
	Target interface{}
	// Operation overrides the operation implied by Ctx.
	Operation common.Operation
}

// Outcome is the normalized result of a mutation.
type Outcome struct {
	Operation common.Operation
	Status    common.Status
	// Kind classifies a failure; empty on success.
	Kind   apierror.Kind
	Errors []common.ErrorEntry
	// Model is the resolved model, a subtype of the requested one on create.
	Model  *metadata.Model
	Object interface{}
	// Payload is the decoded request object.
	Payload map[string]interface{}
	Ignored []string
	// SoftDeleted is set when destroy only flagged the row.
	SoftDeleted bool
}

// OK reports whether the mutation succeeded.
func (o *Outcome) OK() bool {
	return o.Status == common.StatusOK
}

func (o *Outcome) fail(e *apierror.Error) *Outcome {
	o.Kind = e.Kind
	o.Status = e.Kind.Status()
	o.Errors = e.Entries
	return o
}

// Pipeline executes mutations.
type Pipeline struct {
	Store Store
	// Counts is invalidated for the model's table after successful writes.
	Counts *cache.CountCache
}

func New(store Store, counts *cache.CountCache) *Pipeline {
	return &Pipeline{Store: store, Counts: counts}
}

// Run dispatches on the request operation.
func (p *Pipeline) Run(ctx context.Context, req Request) *Outcome {
	op := req.Operation
	if op == "" {
		op = req.Ctx.ResolvedOperation()
	}
	var out *Outcome
	switch op {
	case common.OperationCreate:
		out = p.create(ctx, req)
	case common.OperationUpdate, common.OperationPatch:
		out = p.update(ctx, req, op)
	case common.OperationDestroy:
		out = p.destroy(ctx, req)
	default:
		out = (&Outcome{Operation: op, Model: req.Model}).fail(apierror.BadRequest("", fmt.Sprintf("Unsupported operation %q", op)))
	}
	p.finish(ctx, out)
	return out
}

func (p *Pipeline) Create(ctx context.Context, req Request) *Outcome {
	req.Operation = common.OperationCreate
	return p.Run(ctx, req)
}

func (p *Pipeline) Update(ctx context.Context, req Request) *Outcome {
	if req.Operation != common.OperationPatch {
		req.Operation = common.OperationUpdate
	}
	return p.Run(ctx, req)
}

func (p *Pipeline) Destroy(ctx context.Context, req Request) *Outcome {
	req.Operation = common.OperationDestroy
	return p.Run(ctx, req)
}

func (p *Pipeline) finish(ctx context.Context, out *Outcome) {
	name := ""
	if out.Model != nil {
		name = out.Model.Name
		if out.OK() {
			p.Counts.Invalidate(ctx, out.Model.Table)
		}
	}
	metrics.GetProvider().RecordMutation(name, string(out.Operation), string(out.Status))
	tracing.AddEvent(ctx, "mutation.finished",
		attribute.String("modelspec.status", string(out.Status)),
		attribute.StringSlice("modelspec.ignored", out.Ignored),
	)
}

func format(rc *common.RequestContext) (string, string) {
	if rc == nil {
		return FormatJSON, ""
	}
	return NormalizeFormat(rc.Format), rc.RootElement
}

func rootElement(rc *common.RequestContext, model *metadata.Model) string {
	if _, root := format(rc); root != "" {
		return root
	}
	return reflection.ToSnakeCase(model.Name)
}

func (p *Pipeline) create(ctx context.Context, req Request) *Outcome {
	out := &Outcome{Operation: common.OperationCreate, Model: req.Model}
	f, _ := format(req.Ctx)
	body, err := DecodeBody(req.Body, f, rootElement(req.Ctx, req.Model))
	if err != nil {
		logger.Debug("Rejecting %s create body: %v", req.Model.Name, err)
		return out.fail(apierror.BadPayload(f))
	}
	out.Payload = body

	out.Model = ResolveSubtype(req.Model, body, req.Ctx)
	out.Object = out.Model.New()
	return p.save(ctx, req.Ctx, out)
}

func (p *Pipeline) update(ctx context.Context, req Request, op common.Operation) *Outcome {
	out := &Outcome{Operation: op, Model: req.Model}
	if req.Target == nil {
		return out.fail(apierror.NotFound())
	}
	f, _ := format(req.Ctx)
	body, err := DecodeBody(req.Body, f, rootElement(req.Ctx, req.Model))
	if err != nil {
		logger.Debug("Rejecting %s %s body: %v", req.Model.Name, op, err)
		return out.fail(apierror.BadPayload(f))
	}
	out.Payload = body
	out.Object = req.Target
	return p.save(ctx, req.Ctx, out)
}

// save applies the payload, then runs hooks, validation and persistence in
// one transaction.
func (p *Pipeline) save(ctx context.Context, rc *common.RequestContext, out *Outcome) *Outcome {
	applied, verrs := ApplyUpdates(out.Model, out.Object, out.Payload, out.Operation, rc)
	out.Ignored = applied.Ignored

	err := p.Store.Transaction(ctx, func(tx Store) error {
		if hook := out.Model.Hooks.AfterInitialize; hook != nil {
			if err := hook(out.Object, rc); err != nil {
				return err
			}
		}
		if len(verrs) > 0 {
			return &apierror.Error{Kind: apierror.KindValidationFailed, Entries: apierror.FromValidation(verrs)}
		}
		if entries := validateOperation(out.Object, rc, out.Operation); len(entries) > 0 {
			return &apierror.Error{Kind: apierror.KindBadRequest, Entries: entries}
		}
		if v, ok := out.Object.(metadata.Validator); ok {
			if err := v.Validate(ctx); err != nil {
				return err
			}
		}
		return persist(ctx, tx, out, applied.Columns)
	})
	if err != nil {
		if _, expected := apierror.As(err); !expected {
			logger.Warn("Error saving %s (%s): %v", out.Model.Name, out.Operation, err)
		}
		return out.fail(invalid(err, out.Operation))
	}

	out.Status = common.StatusOK
	out.Errors = []common.ErrorEntry{}
	return out
}

func persist(ctx context.Context, store Store, out *Outcome, columns []string) error {
	switch out.Operation {
	case common.OperationCreate:
		return store.Insert(ctx, out.Model, out.Object)
	case common.OperationPatch:
		if len(columns) == 0 {
			return nil
		}
		return store.Update(ctx, out.Model, out.Object, columns)
	}
	return store.Update(ctx, out.Model, out.Object, nil)
}

// invalid turns a hook, validation or persistence error into a bad request
// carrying the error's entries, or the unspecified entry when it has none.
// A row that vanished while saving is not a missing target.
func invalid(err error, op common.Operation) *apierror.Error {
	if classified := apierror.Classify(err); classified != nil {
		if classified.Kind == apierror.KindNotFound {
			return &apierror.Error{Kind: apierror.KindBadRequest, Entries: []common.ErrorEntry{apierror.Unspecified(op)}, Err: err}
		}
		return &apierror.Error{Kind: classified.Kind, Entries: classified.Entries, Err: err}
	}
	var verrs metadata.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &apierror.Error{Kind: apierror.KindValidationFailed, Entries: apierror.FromValidation(verrs), Err: err}
	}
	return &apierror.Error{Kind: apierror.KindBadRequest, Entries: []common.ErrorEntry{apierror.Unspecified(op)}, Err: err}
}

func validateOperation(obj interface{}, rc *common.RequestContext, op common.Operation) []common.ErrorEntry {
	v, ok := obj.(metadata.OperationValidator)
	if !ok {
		return nil
	}
	return apierror.Normalize(v.ValidateOperation(rc, op), "")
}

// Applied lists what ApplyUpdates wrote and skipped.
type Applied struct {
	Columns []string
	Ignored []string
}

// ApplyUpdates copies every permitted field of body into obj through the
// attribute's parse transform. Fields that are unknown, not writable for
// the operation or not backed by a struct field are ignored. Values that
// cannot be parsed or stored become validation errors.
func ApplyUpdates(model *metadata.Model, obj interface{}, body map[string]interface{}, op common.Operation, rc *common.RequestContext) (Applied, metadata.ValidationErrors) {
	writable := model.Filtered(metadata.PurposeFor(op), rc)
	byName := make(map[string]*metadata.Attribute, len(writable))
	for _, a := range writable {
		byName[a.Name] = a
	}

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var applied Applied
	verrs := metadata.ValidationErrors{}
	for _, k := range keys {
		attr, ok := byName[k]
		if !ok || attr.Field() == nil || attr.IsAssociation() || attr.Field().ReadOnly {
			applied.Ignored = append(applied.Ignored, k)
			continue
		}
		value, err := attr.ParseValue(body[k], rc)
		if err != nil {
			verrs.Add(attr.Name, "is invalid")
			logger.Debug("Parse of %s.%s failed: %v", model.Name, attr.Name, err)
			continue
		}
		if err := reflection.SetField(obj, *attr.Field(), value); err != nil {
			verrs.Add(attr.Name, "is invalid")
			logger.Debug("Assigning %s.%s failed: %v", model.Name, attr.Name, err)
			continue
		}
		if attr.Field().Column != "" {
			applied.Columns = append(applied.Columns, attr.Field().Column)
		}
	}
	if len(applied.Ignored) > 0 {
		logger.Debug("Ignored %s fields: %v", model.Name, applied.Ignored)
	}
	if len(verrs) == 0 {
		verrs = nil
	}
	return applied, verrs
}

// ResolveSubtype picks the subtype of model named by the create-writable
// type attribute of body. An unparsable discriminator is used raw; unknown
// names resolve to model.
func ResolveSubtype(model *metadata.Model, body map[string]interface{}, rc *common.RequestContext) *metadata.Model {
	attr, ok := model.Filtered(metadata.PurposeCreate, rc)[TypeAttribute]
	if !ok {
		return model
	}
	raw, ok := body[attr.Name]
	if !ok || raw == nil {
		return model
	}
	value, err := attr.ParseValue(raw, rc)
	if err != nil {
		logger.Warn("Error encountered parsing API input for attribute %q (%v): %q ... using raw value instead.", attr.Name, err, truncate(fmt.Sprint(raw), 1000))
		value = raw
	}
	name := fmt.Sprint(value)
	if name == "" {
		return model
	}
	if sub, found := model.Registry().ResolveSubtype(model, name); found {
		return sub
	}
	return model
}

func (p *Pipeline) destroy(ctx context.Context, req Request) *Outcome {
	out := &Outcome{Operation: common.OperationDestroy, Model: req.Model, Object: req.Target}
	if req.Target == nil {
		return out.fail(apierror.NotFound())
	}

	entries := validateOperation(req.Target, req.Ctx, common.OperationDestroy)
	destroyed := false
	if len(entries) == 0 {
		out.SoftDeleted, destroyed, entries = p.remove(ctx, req.Model, req.Target)
	}

	switch {
	case len(entries) == 0 && (out.SoftDeleted || destroyed):
		out.Status = common.StatusOK
		out.Errors = []common.ErrorEntry{}
		return out
	case len(entries) > 0:
		return out.fail(&apierror.Error{Kind: apierror.KindBadRequest, Entries: entries})
	}
	return out.fail(&apierror.Error{Kind: apierror.KindInternalError, Entries: []common.ErrorEntry{apierror.Unspecified(common.OperationDestroy)}})
}

// remove flags the row deleted when the model has a deleted marker and
// deletes it otherwise. Failures are logged and reported as not destroyed;
// only validation errors raised while destroying surface as entries.
func (p *Pipeline) remove(ctx context.Context, model *metadata.Model, obj interface{}) (soft, destroyed bool, entries []common.ErrorEntry) {
	id, _ := reflection.GetFieldByColumn(obj, model.PrimaryKey)
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Error destroying %s \"%v\": %v", model.Name, id, r)
			soft, destroyed, entries = false, false, nil
		}
	}()

	var value interface{}
	switch model.DeletedKind {
	case reflection.KindBool:
		value = true
	case reflection.KindInteger:
		value = 1
	}
	if model.DeletedColumn != "" && value != nil {
		err := p.Store.Transaction(ctx, func(tx Store) error {
			return tx.MarkDeleted(ctx, model, obj, value)
		})
		if err != nil {
			logger.Warn("Error destroying %s \"%v\": %v", model.Name, id, err)
			return false, false, validationEntries(err)
		}
		if err := reflection.SetFieldByColumn(obj, model.DeletedColumn, value); err != nil {
			logger.Debug("Could not flag %s %v deleted in memory: %v", model.Name, id, err)
		}
		return true, false, nil
	}

	var ok bool
	err := p.Store.Transaction(ctx, func(tx Store) (err error) {
		ok, err = tx.Destroy(ctx, model, obj)
		return err
	})
	if err != nil {
		logger.Warn("Error destroying %s \"%v\": %v", model.Name, id, err)
		return false, false, validationEntries(err)
	}
	return false, ok, nil
}

func validationEntries(err error) []common.ErrorEntry {
	var verrs metadata.ValidationErrors
	if errors.As(err, &verrs) {
		return apierror.FromValidation(verrs)
	}
	if e, ok := apierror.As(err); ok && e.Kind == apierror.KindValidationFailed {
		return e.Entries
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
