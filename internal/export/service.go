// Package export writes a project's full resource tree to disk: one JSON
// file per flat resource, nested layouts for flows, knowledge stores and AI
// agents, and a manifest describing the run.
package export

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dialogfabrik/cogctl/internal/fsutil"
	"github.com/dialogfabrik/cogctl/internal/platform"
	"github.com/dialogfabrik/cogctl/internal/serialize"
	"github.com/dialogfabrik/cogctl/internal/ui/console"
)

// Service exports resource trees from one platform project.
type Service struct {
	Client  *platform.Client
	Console *console.Writer
	Log     zerolog.Logger
}

// Result summarises one export run.
type Result struct {
	Tree string
	// PackageResourceIDs are the ids eligible for package creation. The
	// platform rejects functions, extensions and locales in packages, so
	// those are exported to disk but excluded here.
	PackageResourceIDs []string
	Counts             map[string]int
}

// ExportTree removes any previous tree at the target path and writes a
// fresh export of the whole project.
func (s *Service) ExportTree(ctx context.Context, tree string) (*Result, error) {
	if err := fsutil.ResetTree(tree); err != nil {
		return nil, fmt.Errorf("reset tree %s: %w", tree, err)
	}

	result := &Result{Tree: tree, Counts: map[string]int{}}

	flowIDs, err := s.Client.ResourceIDs(ctx, platform.EndpointFlows)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	if err := s.exportFlows(ctx, tree, flowIDs); err != nil {
		return nil, err
	}
	result.Counts[platform.EndpointFlows] = len(flowIDs)
	result.PackageResourceIDs = append(result.PackageResourceIDs, flowIDs...)
	s.Console.Info("Exported %d flow(s)", len(flowIDs))

	for _, endpoint := range platform.FlatEndpoints {
		ids, err := s.Client.ResourceIDs(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", endpoint, err)
		}
		if err := s.exportFlat(ctx, tree, endpoint, ids); err != nil {
			return nil, err
		}
		result.Counts[endpoint] = len(ids)
		if packageable(endpoint) {
			result.PackageResourceIDs = append(result.PackageResourceIDs, ids...)
		}
		s.Console.Info("Exported %d %s", len(ids), endpoint)
	}

	storeIDs, err := s.Client.ResourceIDs(ctx, platform.EndpointKnowledgeStores)
	if err != nil {
		return nil, fmt.Errorf("list knowledge stores: %w", err)
	}
	if err := s.exportKnowledgeStores(ctx, tree, storeIDs); err != nil {
		return nil, err
	}
	result.Counts[platform.EndpointKnowledgeStores] = len(storeIDs)
	result.PackageResourceIDs = append(result.PackageResourceIDs, storeIDs...)
	s.Console.Info("Exported %d knowledge store(s)", len(storeIDs))

	agentIDs, err := s.Client.ResourceIDs(ctx, platform.EndpointAIAgents)
	if err != nil {
		return nil, fmt.Errorf("list ai agents: %w", err)
	}
	if err := s.exportAIAgents(ctx, tree, agentIDs); err != nil {
		return nil, err
	}
	result.Counts[platform.EndpointAIAgents] = len(agentIDs)
	result.PackageResourceIDs = append(result.PackageResourceIDs, agentIDs...)
	s.Console.Info("Exported %d AI agent(s)", len(agentIDs))

	s.Log.Info().Str("tree", tree).Interface("counts", result.Counts).Msg("export complete")
	return result, nil
}

// packageable reports whether a resource type may be included in a package.
func packageable(endpoint string) bool {
	switch endpoint {
	case platform.EndpointFunctions, platform.EndpointLocales, platform.EndpointExtensions:
		return false
	}
	return true
}

func (s *Service) exportFlows(ctx context.Context, tree string, flowIDs []string) error {
	for _, id := range flowIDs {
		bundle, err := s.Client.FetchFlow(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch flow %s: %w", id, err)
		}
		name, err := bundle.Name()
		if err != nil {
			return err
		}

		aspects := map[string]any{
			fsutil.FlowMetadataName: bundle.Metadata,
			fsutil.FlowChartName:    bundle.Chart,
			fsutil.FlowSettingsName: bundle.Settings,
			fsutil.FlowIntentsName:  bundle.Intents,
			fsutil.FlowStatesName:   bundle.States,
		}
		for aspect, content := range aspects {
			if err := serialize.WriteValue(fsutil.FlowAspectPath(tree, name, aspect), content); err != nil {
				return fmt.Errorf("write flow %s %s: %w", name, aspect, err)
			}
		}
	}
	return nil
}

func (s *Service) exportFlat(ctx context.Context, tree, endpoint string, ids []string) error {
	for _, id := range ids {
		doc, err := s.Client.FetchResource(ctx, endpoint, id)
		if err != nil {
			return fmt.Errorf("fetch %s %s: %w", endpoint, id, err)
		}
		name, ok := doc["name"].(string)
		if !ok || name == "" {
			return fmt.Errorf("%s %s has no name", endpoint, id)
		}
		if err := serialize.WriteValue(fsutil.ResourcePath(tree, endpoint, name), doc); err != nil {
			return fmt.Errorf("write %s %s: %w", endpoint, name, err)
		}
	}
	return nil
}

func (s *Service) exportKnowledgeStores(ctx context.Context, tree string, storeIDs []string) error {
	for _, id := range storeIDs {
		bundle, err := s.Client.FetchKnowledgeStore(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch knowledge store %s: %w", id, err)
		}
		name, ok := bundle.Metadata["name"].(string)
		if !ok || name == "" {
			return fmt.Errorf("knowledge store %s has no name", id)
		}
		metaPath := fsutil.KnowledgeStoreDir(tree, name) + "/" + fsutil.KnowledgeMetaJSON
		if err := serialize.WriteValue(metaPath, bundle.Metadata); err != nil {
			return fmt.Errorf("write knowledge store %s: %w", name, err)
		}

		sourceNames := make([]string, 0, len(bundle.Sources))
		for sourceName := range bundle.Sources {
			sourceNames = append(sourceNames, sourceName)
		}
		sort.Strings(sourceNames)
		for _, sourceName := range sourceNames {
			path := fsutil.KnowledgeSourcePath(tree, name, sourceName)
			if err := serialize.WriteValue(path, bundle.Sources[sourceName]); err != nil {
				return fmt.Errorf("write knowledge source %s: %w", sourceName, err)
			}
		}
	}
	return nil
}

func (s *Service) exportAIAgents(ctx context.Context, tree string, agentIDs []string) error {
	for _, id := range agentIDs {
		bundle, err := s.Client.FetchAIAgent(ctx, id)
		if err != nil {
			return fmt.Errorf("fetch ai agent %s: %w", id, err)
		}
		name, ok := bundle.Config["name"].(string)
		if !ok || name == "" {
			return fmt.Errorf("ai agent %s has no name", id)
		}
		configPath := fsutil.AIAgentDir(tree, name) + "/" + fsutil.AIAgentConfigJSON
		if err := serialize.WriteValue(configPath, bundle.Config); err != nil {
			return fmt.Errorf("write ai agent %s: %w", name, err)
		}

		for i, job := range bundle.Jobs {
			jobConfig, _ := job["config"].(map[string]any)
			jobName, _ := jobConfig["name"].(string)
			if jobName == "" {
				jobName = "job"
			}
			jobDir := fsutil.AIAgentJobDir(tree, name, jobName, i)
			if err := serialize.WriteValue(jobDir+"/"+fsutil.AIAgentConfigJSON, jobConfig); err != nil {
				return fmt.Errorf("write ai agent %s job %s: %w", name, jobName, err)
			}

			tools, _ := job["tools"].([]any)
			for j, t := range tools {
				tool, _ := t.(map[string]any)
				toolConfig, _ := tool["config"].(map[string]any)
				toolID, _ := toolConfig["toolId"].(string)
				if toolID == "" {
					toolID = "tool"
				}
				toolPath := fmt.Sprintf("%s/%s/%s_%d.json", jobDir, fsutil.ToolsDirName, fsutil.SanitizeName(toolID), j)
				if err := serialize.WriteValue(toolPath, tool); err != nil {
					return fmt.Errorf("write ai agent %s tool %s: %w", name, toolID, err)
				}
			}
		}
	}
	return nil
}
