// Package extract pulls JSON documents out of server-rendered HTML pages.
//
// Instagram pages embed their initial state in script tags, either as
//
//	window._sharedData = {...};
//
// or as
//
//	window.__additionalDataLoaded('/username/', {...});
//
// Extract finds one such anchor and decodes the single JSON value that follows it. First walks an
// ordered list of anchors, which is how the profile feed falls back from the shared data blob to the
// additional data call. Lookup, String and Decode navigate the resulting payload by key path:
//
//	raw, _, err := extract.First(html)
//	if err != nil {
//		return err
//	}
//	token, err := extract.String(raw, "config", "csrf_token")
//
// All failures are parsing errors from pkg/errors with a reason of anchor_not_found, invalid_json or
// missing_field.
package extract
