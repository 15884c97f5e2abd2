package platform

import (
	"context"
	"fmt"
	"net/http"
)

// Resource type endpoints that export as one flat JSON file per resource.
const (
	EndpointFlows           = "flows"
	EndpointLexicons        = "lexicons"
	EndpointConnections     = "connections"
	EndpointNLUConnectors   = "nluconnectors"
	EndpointAIAgents        = "aiagents"
	EndpointLLMs            = "largelanguagemodels"
	EndpointKnowledgeStores = "knowledgestores"
	EndpointFunctions       = "functions"
	EndpointLocales         = "locales"
	EndpointExtensions      = "extensions"
)

// FlatEndpoints lists the resource types exported as single documents,
// in export order.
var FlatEndpoints = []string{
	EndpointLexicons,
	EndpointConnections,
	EndpointNLUConnectors,
	EndpointLLMs,
	EndpointFunctions,
	EndpointLocales,
	EndpointExtensions,
}

// ResourceIDs returns the _id of every resource behind a collection endpoint.
func (c *Client) ResourceIDs(ctx context.Context, endpoint string) ([]string, error) {
	docs, err := c.listDocs(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, ok := doc["_id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("%s item without _id", endpoint)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FetchResource retrieves one resource document by ID.
func (c *Client) FetchResource(ctx context.Context, endpoint, id string) (map[string]any, error) {
	var doc map[string]any
	if err := c.do(ctx, http.MethodGet, endpoint+"/"+id, nil, nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FlowBundle is the full export surface of one flow.
type FlowBundle struct {
	Metadata map[string]any
	Chart    []map[string]any
	Settings map[string]any
	Intents  map[string]IntentBundle
	States   map[string]map[string]any
}

// IntentBundle pairs an intent with its training sentences.
type IntentBundle struct {
	Metadata          map[string]any   `json:"metadata"`
	TrainingSentences []map[string]any `json:"training_sentences"`
}

// Name returns the flow's display name from its metadata.
func (b FlowBundle) Name() (string, error) {
	name, ok := b.Metadata["name"].(string)
	if !ok || name == "" {
		return "", fmt.Errorf("flow metadata without name")
	}
	return name, nil
}

// FetchFlow assembles the full bundle for one flow: metadata, settings, the
// chart with each node's content inlined, intents with training sentences,
// and states.
func (c *Client) FetchFlow(ctx context.Context, flowID string) (FlowBundle, error) {
	bundle := FlowBundle{
		Intents: map[string]IntentBundle{},
		States:  map[string]map[string]any{},
	}

	if err := c.do(ctx, http.MethodGet, "flows/"+flowID, nil, nil, &bundle.Metadata); err != nil {
		return FlowBundle{}, fmt.Errorf("flow metadata: %w", err)
	}
	if err := c.do(ctx, http.MethodGet, "flows/"+flowID+"/settings", nil, nil, &bundle.Settings); err != nil {
		return FlowBundle{}, fmt.Errorf("flow settings: %w", err)
	}

	chart, err := c.fetchChart(ctx, flowID)
	if err != nil {
		return FlowBundle{}, fmt.Errorf("flow chart: %w", err)
	}
	bundle.Chart = chart

	intents, err := c.listDocs(ctx, "flows/"+flowID+"/intents", nil)
	if err != nil {
		return FlowBundle{}, fmt.Errorf("flow intents: %w", err)
	}
	for _, intent := range intents {
		name, _ := intent["name"].(string)
		id, _ := intent["_id"].(string)
		if name == "" || id == "" {
			continue
		}
		sentences, err := c.listDocs(ctx, "flows/"+flowID+"/intents/"+id+"/sentences", nil)
		if err != nil {
			return FlowBundle{}, fmt.Errorf("intent %s sentences: %w", name, err)
		}
		bundle.Intents[name] = IntentBundle{Metadata: intent, TrainingSentences: sentences}
	}

	states, err := c.listDocs(ctx, "flows/"+flowID+"/states", nil)
	if err != nil {
		return FlowBundle{}, fmt.Errorf("flow states: %w", err)
	}
	for _, state := range states {
		id, _ := state["_id"].(string)
		if id == "" {
			continue
		}
		full, err := c.FetchResource(ctx, "flows/"+flowID+"/states", id)
		if err != nil {
			return FlowBundle{}, fmt.Errorf("flow state %s: %w", id, err)
		}
		if name, ok := full["name"].(string); ok && name != "" {
			bundle.States[name] = full
		}
	}

	return bundle, nil
}

// fetchChart returns the flow chart relations with each node's full content
// attached under _data. The relation's own _id is dropped and replaced by
// the node ID, which is the identifier every other resource references.
func (c *Client) fetchChart(ctx context.Context, flowID string) ([]map[string]any, error) {
	var chartResp struct {
		Relations []map[string]any `json:"relations"`
	}
	if err := c.do(ctx, http.MethodGet, "flows/"+flowID+"/chart", nil, nil, &chartResp); err != nil {
		return nil, err
	}

	nodes := make([]map[string]any, 0, len(chartResp.Relations))
	for _, relation := range chartResp.Relations {
		nodeID, _ := relation["node"].(string)
		if nodeID == "" {
			continue
		}
		data, err := c.FetchResource(ctx, "flows/"+flowID+"/chart/nodes", nodeID)
		if err != nil {
			return nil, fmt.Errorf("chart node %s: %w", nodeID, err)
		}
		delete(relation, "_id")
		delete(relation, "node")
		relation["_id"] = nodeID
		relation["_data"] = data
		nodes = append(nodes, relation)
	}
	return nodes, nil
}

// KnowledgeStoreBundle is the export surface of one knowledge store.
type KnowledgeStoreBundle struct {
	Metadata map[string]any
	Sources  map[string]map[string]any
}

// FetchKnowledgeStore returns a store's metadata and its sources, each with
// their chunks inlined.
func (c *Client) FetchKnowledgeStore(ctx context.Context, storeID string) (KnowledgeStoreBundle, error) {
	bundle := KnowledgeStoreBundle{Sources: map[string]map[string]any{}}

	if err := c.do(ctx, http.MethodGet, EndpointKnowledgeStores+"/"+storeID, nil, nil, &bundle.Metadata); err != nil {
		return KnowledgeStoreBundle{}, fmt.Errorf("knowledge store metadata: %w", err)
	}

	sources, err := c.listDocs(ctx, EndpointKnowledgeStores+"/"+storeID+"/sources", nil)
	if err != nil {
		return KnowledgeStoreBundle{}, fmt.Errorf("knowledge sources: %w", err)
	}
	for _, source := range sources {
		id, _ := source["_id"].(string)
		name, _ := source["name"].(string)
		if id == "" || name == "" {
			continue
		}
		chunks, err := c.listDocs(ctx, EndpointKnowledgeStores+"/"+storeID+"/sources/"+id+"/chunks", nil)
		if err != nil {
			return KnowledgeStoreBundle{}, fmt.Errorf("source %s chunks: %w", name, err)
		}
		source["chunks"] = chunks
		bundle.Sources[name] = source
	}

	return bundle, nil
}

// AIAgentBundle is the export surface of one AI agent.
type AIAgentBundle struct {
	Config map[string]any
	Jobs   []map[string]any
}

// FetchAIAgent returns the agent configuration together with its jobs,
// including each job's tools.
func (c *Client) FetchAIAgent(ctx context.Context, agentID string) (AIAgentBundle, error) {
	var bundle AIAgentBundle
	if err := c.do(ctx, http.MethodGet, EndpointAIAgents+"/"+agentID, nil, nil, &bundle.Config); err != nil {
		return AIAgentBundle{}, fmt.Errorf("ai agent config: %w", err)
	}
	if err := c.do(ctx, http.MethodGet, EndpointAIAgents+"/"+agentID+"/jobs", nil, nil, &bundle.Jobs); err != nil {
		return AIAgentBundle{}, fmt.Errorf("ai agent jobs: %w", err)
	}
	return bundle, nil
}
