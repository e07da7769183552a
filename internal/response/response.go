// Package response extracts typed sub-payloads from a raw delivery-API
// response tree. Every function is total over a possibly-partial tree
// and returns the zero value instead of failing on missing fields.
package response

import (
	"github.com/mboxkit/mboxkit/internal/jsonval"
	"github.com/mboxkit/mboxkit/internal/wire"
)

// Fields of a prefetched mbox response kept in the long-lived cache.
// Everything else is pruned to bound the cache's memory footprint.
var prefetchCacheWhitelist = []string{
	wire.KeyMboxName,
	wire.KeyMboxState,
	wire.KeyOptions,
	wire.KeyAnalyticsNode,
	wire.KeyMetrics,
}

// ExtractMboxes indexes the mbox array under tree[key] by mbox name.
// Returns nil when the container or its mbox array is absent; unnamed
// entries are skipped.
func ExtractMboxes(tree map[string]any, key string) map[string]map[string]any {
	container := jsonval.OptObject(tree, key)
	if container == nil {
		return nil
	}
	raw := jsonval.OptArray(container, wire.KeyMboxes)
	if raw == nil {
		return nil
	}

	mboxes := make(map[string]map[string]any)
	for _, entry := range raw {
		mbox, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name := jsonval.OptString(mbox, wire.KeyMboxName, "")
		if name == "" {
			continue
		}
		mboxes[name] = mbox
	}
	return mboxes
}

// ExtractPrefetchedMboxes indexes the prefetch mboxes by name and
// prunes each entry down to the cache whitelist.
func ExtractPrefetchedMboxes(tree map[string]any) map[string]map[string]any {
	mboxes := ExtractMboxes(tree, wire.KeyPrefetch)
	if mboxes == nil {
		return nil
	}
	for name, mbox := range mboxes {
		pruned := make(map[string]any, len(prefetchCacheWhitelist))
		for _, field := range prefetchCacheWhitelist {
			if value, ok := mbox[field]; ok {
				pruned[field] = value
			}
		}
		mboxes[name] = pruned
	}
	return mboxes
}

// TntID reads the visitor id issued by the server, empty when absent.
func TntID(tree map[string]any) string {
	return jsonval.OptString(jsonval.OptObject(tree, wire.KeyID), wire.KeyTntID, "")
}

// EdgeHost reads the routing host returned by the server, empty when
// absent.
func EdgeHost(tree map[string]any) string {
	return jsonval.OptString(tree, wire.KeyEdgeHost, "")
}

// ErrorMessage reads the server-reported error, empty when the call
// succeeded.
func ErrorMessage(tree map[string]any) string {
	return jsonval.OptString(tree, wire.KeyMessage, "")
}

// ExtractContent concatenates the content of every option in the mbox
// response: html options contribute their raw string, json options
// their stringified sub-tree. Empty contents are skipped. Returns
// empty when the options array is absent.
func ExtractContent(mbox map[string]any) string {
	options := jsonval.OptArray(mbox, wire.KeyOptions)
	if options == nil {
		return ""
	}

	var content string
	for _, entry := range options {
		option, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		raw, present := option[wire.KeyContent]
		if !present {
			continue
		}
		switch jsonval.OptString(option, wire.KeyOptionType, "") {
		case wire.OptionTypeHTML:
			if s, ok := raw.(string); ok && s != "" {
				content += s
			}
		case wire.OptionTypeJSON:
			if tree, ok := raw.(map[string]any); ok && len(tree) > 0 {
				content += jsonval.Stringify(tree)
			}
		}
	}
	return content
}

// ResponseTokens reads options[0].responseTokens. Later options are
// ignored.
func ResponseTokens(mbox map[string]any) map[string]string {
	options := jsonval.OptArray(mbox, wire.KeyOptions)
	if len(options) == 0 {
		return nil
	}
	first, ok := options[0].(map[string]any)
	if !ok {
		return nil
	}
	return jsonval.OptStringMap(first, wire.KeyResponseTokens)
}

// AnalyticsPayload reads the analytics-for-target payload attached to
// node, nil when absent.
func AnalyticsPayload(node map[string]any) map[string]string {
	analytics := jsonval.OptObject(node, wire.KeyAnalyticsNode)
	if analytics == nil {
		return nil
	}
	payload := jsonval.OptStringMap(analytics, wire.KeyPayload)
	if len(payload) == 0 {
		return nil
	}
	return payload
}

// ClickMetric returns the first metrics entry with type click and a
// non-empty event token, nil when none qualifies.
func ClickMetric(mbox map[string]any) map[string]any {
	metrics := jsonval.OptArray(mbox, wire.KeyMetrics)
	for _, entry := range metrics {
		metric, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if jsonval.OptString(metric, wire.KeyMetricType, "") != wire.MetricTypeClick {
			continue
		}
		if jsonval.OptString(metric, wire.KeyEventToken, "") == "" {
			continue
		}
		return metric
	}
	return nil
}

// ClickMetricAnalyticsPayload reads the analytics payload nested in the
// mbox's qualifying click metric, nil when absent.
func ClickMetricAnalyticsPayload(mbox map[string]any) map[string]string {
	metric := ClickMetric(mbox)
	if metric == nil {
		return nil
	}
	return AnalyticsPayload(metric)
}

// PrefixAnalyticsKeys prepends "&&" to every payload key and appends
// the session id, producing the context data handed to the analytics
// collaborator. Returns nil when the payload is empty.
func PrefixAnalyticsKeys(payload map[string]string, sessionID string) map[string]string {
	if len(payload) == 0 {
		return nil
	}
	prefixed := make(map[string]string, len(payload)+1)
	for key, value := range payload {
		prefixed["&&"+key] = value
	}
	if sessionID != "" {
		prefixed["a.target.sessionId"] = sessionID
	}
	return prefixed
}
