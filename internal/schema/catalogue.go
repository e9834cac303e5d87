package schema

import (
	"fmt"
	"sort"
)

const (
	sentimentDesc = "A 2 decimal value that represents the overall sentiment of the input. " +
		"Ranges from -1.00 (max negative sentiment) to 1.00 (max positive sentiment), " +
		"with 0.00 indicating neutral sentiment. It must be between -1.00 and 1.00"
	perItemSentimentDesc = "A list of sentiment scores corresponding to the list of identified sub-categories. " +
		"Each score is a 2 decimal value between -1.00 and 1.00. The list must be of equal length " +
		"to the list of sub-categories, and in the same order."
	primaryDesc = "The primary category identified inside the input. Each category name should be concise."
	top5Desc    = "The top 1 to 5 sub-categories identified inside the input in order of relevance. " +
		"Each category name should be concise."
	subCatsDesc = "All sub-categories identified inside the input in order of relevance, capturing all " +
		"the topics, with at least 1 and no more than 30 categories. Each category name should be concise."
)

var (
	fieldSentiment = Field{Name: "sentiment_score", Kind: KindSentiment, Description: sentimentDesc}
	fieldPrimary   = Field{Name: "primary_category", Kind: KindString, Description: primaryDesc}
	fieldTop5      = Field{Name: "top_categories", Kind: KindStringList, Description: top5Desc, MinItems: 1, MaxItems: 5}
	fieldSubCats   = Field{Name: "sub_categories", Kind: KindStringList, Description: subCatsDesc, MinItems: 1, MaxItems: 30}
	fieldPerItem   = Field{Name: "per_sub_category_sentiment_scores", Kind: KindSentimentList,
		Description: perItemSentimentDesc, MinItems: 1, MaxItems: 30, PairedWith: "sub_categories"}
)

var catalogue = map[string]Validator{}

func register(v Validator) {
	catalogue[v.Name()] = v
}

func init() {
	register(NewModel("sentiment", "Overall sentiment score.", fieldSentiment))
	register(NewModel("primary_category", "Single primary category.", fieldPrimary))
	register(NewModel("top_categories", "Top 1 to 5 categories.", fieldTop5))
	register(NewModel("sub_categories", "1 to 30 sub-categories.", fieldSubCats))
	register(NewModel("primary_category_sentiment", "Primary category and overall sentiment.",
		fieldPrimary, fieldSentiment))
	register(NewModel("primary_sub_category", "Primary category and its sub-categories.",
		fieldPrimary, fieldSubCats))
	register(NewModel("sub_categories_sentiment", "Sub-categories and overall sentiment.",
		fieldSubCats, fieldSentiment))
	register(NewModel("sub_categories_per_item_sentiment", "Sub-categories with a sentiment per sub-category.",
		fieldSubCats, fieldPerItem))
	register(NewModel("sub_categories_per_item_overall_sentiment",
		"Sub-categories with per sub-category and overall sentiment.",
		fieldSubCats, fieldPerItem, fieldSentiment))
	register(NewModel("top_categories_sentiment", "Top 1 to 5 categories and overall sentiment.",
		fieldTop5, fieldSentiment))
	register(NewModel("category_hierarchy_sentiment", "Primary category, sub-categories and overall sentiment.",
		fieldPrimary, fieldSubCats, fieldSentiment))
}

// Lookup returns the catalogue validator with the given name.
func Lookup(name string) (Validator, error) {
	v, ok := catalogue[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid: %v)", ErrUnknownValidator, name, Names())
	}
	return v, nil
}

// Names lists the catalogue in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalogue))
	for name := range catalogue {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
