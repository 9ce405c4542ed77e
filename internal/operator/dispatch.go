package operator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ZanzyTHEbar/concrete-go"
	"github.com/ZanzyTHEbar/concrete-go/internal/eventbus"
	"github.com/ZanzyTHEbar/concrete-go/internal/schema"
	"github.com/ZanzyTHEbar/concrete-go/internal/tools"
)

// MaxToolAttempts bounds tool invocations per call. When they are used up
// the last tool request is returned as the answer.
const MaxToolAttempts = 3

const toolsAddendum = "Here are your available tools. If invoking a tool will help you answer the question, " +
	"fill in the exact values for tool_name, tool_method, and tool_parameters. " +
	"Leave these fields empty if no tool is needed."

// Invoke calls the capability name. See InvokeCapability.
func (o *Operator) Invoke(ctx context.Context, name string, args Args, opts ...CallOptions) (any, error) {
	var call CallOptions
	for _, opt := range opts {
		call = call.Merge(opt)
	}
	return InvokeCapability(ctx, o, name, args, call)
}

// InvokeCapability is the single path every capability call takes.
//
// The capability runs first. A non-string result is returned as is and the
// model is never consulted. A string result is the query: it is sent with
// the operator's instructions as system message, decoded into the answer
// schema and, when the model asks for a tool, resolved through the tool
// registry. With async set the model round trip runs in the background and
// a *Future is returned instead.
func InvokeCapability(ctx context.Context, o *Operator, name string, args Args, opts CallOptions) (any, error) {
	c, ok := o.capability(name)
	if !ok {
		return nil, concrete.NewCapabilityNotFoundError(o.Name, name)
	}
	eff := o.Defaults().Merge(c.defaults).Merge(opts)
	if args == nil {
		args = Args{}
	}

	log := o.logger.WithField("capability", name)
	o.publish(ctx, eventbus.EventCapabilityInvoked, name, map[string]interface{}{"capability": name})

	out, err := c.fn(ctx, args)
	if err != nil {
		return nil, err
	}
	query, isQuery := out.(string)
	if c.raw || !isQuery {
		log.Debug("capability returned a value, skipping completion")
		return out, nil
	}

	if flag(eff.Async) {
		log.Debug("submitting capability to the async pool")
		return o.submit(ctx, func(jobCtx context.Context) (any, error) {
			return o.qna(jobCtx, name, query, eff)
		})
	}
	return o.qna(ctx, name, query, eff)
}

// effectiveTools returns the tools offered for a call: explicit tools win,
// otherwise the operator's tools when use-tools is on.
func (o *Operator) effectiveTools(eff CallOptions) []*tools.Tool {
	if len(eff.Tools) > 0 {
		return eff.Tools
	}
	if flag(eff.UseTools) {
		return o.Tools()
	}
	return nil
}

// ToolsAddendum is the text appended to a query that offers ts to the model.
func ToolsAddendum(ts []*tools.Tool) string {
	if len(ts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(toolsAddendum)
	for _, t := range ts {
		b.WriteString(t.String())
	}
	return b.String()
}

// ToolPreface is prepended to the original query after a tool returned.
func ToolPreface(req schema.ToolRequest, result any) string {
	return "You called the tool: " + req.ToolName + "." + req.ToolMethod + "\n" +
		"with the following parameters: " + req.ParamString() + "\n" +
		"The tool returned: " + schema.Text(result) + "\n" +
		"Use these results to answer the following query:\n"
}

type asker struct {
	o          *Operator
	capability string
	svc        concrete.CompletionService
	schemaName string
	reqSchema  map[string]any
	withTools  bool
	eff        CallOptions
	// query is the capability's own query, reported on refusal.
	query string
}

func (o *Operator) qna(ctx context.Context, capabilityName, query string, eff CallOptions) (any, error) {
	schemaName := strings.ToLower(eff.AnswerSchema)
	offered := o.effectiveTools(eff)
	withTools := len(offered) > 0

	reqSchema, err := o.schemas.RequestSchema(schemaName, withTools)
	if err != nil {
		return nil, err
	}
	svc, err := o.client(eff.Client)
	if err != nil {
		return nil, err
	}
	a := &asker{
		o:          o,
		capability: capabilityName,
		svc:        svc,
		schemaName: schemaName,
		reqSchema:  reqSchema,
		withTools:  withTools,
		eff:        eff,
		query:      query,
	}

	reply, err := a.ask(ctx, query+ToolsAddendum(offered))
	if err != nil {
		return nil, err
	}
	if !withTools {
		return reply.Answer, nil
	}

	log := o.logger.WithField("capability", capabilityName)
	attempts := 0
	for reply.IsToolRequest() && attempts < MaxToolAttempts {
		attempts++
		req := *reply.Tool
		fields := logrus.Fields{"tool": req.ToolName, "method": req.ToolMethod, "attempt": attempts}

		result, err := o.registry.InvokeRequest(ctx, req)
		if err != nil {
			if concrete.CodeOf(err) == concrete.ErrCodeToolNotFound {
				return nil, err
			}
			log.WithFields(fields).WithError(err).Warn("tool invocation failed")
			o.publish(ctx, eventbus.EventToolFailed, req.String(), map[string]interface{}{"attempt": attempts, "error": err.Error()})
			continue
		}
		o.publish(ctx, eventbus.EventToolInvoked, req.String(), map[string]interface{}{"attempt": attempts})
		if result == nil {
			break
		}

		log.WithFields(fields).Debug("tool returned, asking again")
		reply, err = a.ask(ctx, ToolPreface(req, result)+query)
		if err != nil {
			return nil, err
		}
	}

	if reply.IsToolRequest() {
		log.WithField("attempts", attempts).Warn("could not invoke tool, returning attempted tool call request")
		o.publish(ctx, eventbus.EventToolRetryExceeded, reply.Tool.String(), map[string]interface{}{"attempts": attempts})
		return reply, nil
	}
	return reply.Answer, nil
}

// ask sends one completion request and decodes the answer.
func (a *asker) ask(ctx context.Context, query string) (schema.Reply, error) {
	o := a.o
	req := concrete.CompletionRequest{
		Messages: []concrete.ChatMessage{
			{Role: concrete.RoleSystem, Content: a.eff.Instructions},
			{Role: concrete.RoleUser, Content: query},
		},
		SchemaName: a.schemaName,
		Schema:     a.reqSchema,
	}
	if a.withTools {
		req.SchemaName = schema.WidenedName(a.schemaName)
	}

	o.publish(ctx, eventbus.EventCompletionSent, a.capability, map[string]interface{}{"schema": req.SchemaName})
	resp, err := a.svc.Complete(ctx, req)
	if err != nil {
		return schema.Reply{}, err
	}
	if resp.Refusal != "" {
		o.logger.WithField("capability", a.capability).Warn("operator refused to answer question")
		o.publish(ctx, eventbus.EventCompletionRefused, a.capability, map[string]interface{}{"refusal": resp.Refusal})
		return schema.Reply{}, concrete.NewOperatorRefusalError(o.Name, a.query, resp.Refusal)
	}

	if err := o.schemas.Validate(a.schemaName, resp.Content, a.withTools); err != nil {
		return schema.Reply{}, err
	}
	reply, err := o.schemas.DecodeReply(a.schemaName, resp.Content, a.withTools)
	if err != nil {
		return schema.Reply{}, err
	}

	if o.storeMessages {
		if err := o.persist(ctx, a.schemaName, resp.Content, query); err != nil {
			return schema.Reply{}, err
		}
	}
	return reply, nil
}

func (o *Operator) persist(ctx context.Context, schemaName string, content json.RawMessage, query string) error {
	if o.store == nil {
		return concrete.NewStoreUnavailableError(o.Name)
	}
	msg := concrete.Message{
		ID:         uuid.New().String(),
		Type:       schemaName,
		Content:    content,
		Prompt:     query,
		ProjectID:  o.ProjectID,
		OperatorID: o.ID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.store.SaveMessage(ctx, msg); err != nil {
		return concrete.NewStoreError("save_message", err)
	}
	return nil
}

func (o *Operator) publish(ctx context.Context, t eventbus.EventType, payload interface{}, meta map[string]interface{}) {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["operator"] = o.Name
	meta["operator_id"] = o.ID
	if err := eventbus.Publish(ctx, o.bus, t, payload, "Operator", meta); err != nil {
		o.logger.WithError(err).WithField("event_type", t).Debug("event not published")
	}
}
