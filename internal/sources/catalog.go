package sources

// DefaultCatalog is the built-in source list. High-tier sources are the
// vendor blogs that break news first, medium-tier the trade press, low-tier
// academic and community feeds that update slowly.
func DefaultCatalog() []Source {
	return []Source{
		{
			ID: "openai-blog", Name: "OpenAI Blog",
			FeedURL: "https://openai.com/blog/rss.xml", SiteURL: "https://openai.com/blog",
			Language: "en", Category: "AI/ML", Priority: PriorityHigh, Type: TypeOfficial, Active: true,
		},
		{
			ID: "anthropic-news", Name: "Anthropic News",
			FeedURL: "https://www.anthropic.com/rss.xml", SiteURL: "https://www.anthropic.com/news",
			Language: "en", Category: "AI/ML", Priority: PriorityHigh, Type: TypeOfficial, Active: true,
		},
		{
			ID: "google-ai-blog", Name: "Google AI Blog",
			FeedURL: "https://blog.google/technology/ai/rss/", SiteURL: "https://blog.google/technology/ai/",
			Language: "en", Category: "AI/ML", Priority: PriorityHigh, Type: TypeOfficial, Active: true,
		},
		{
			ID: "deepmind-blog", Name: "DeepMind Blog",
			FeedURL: "https://deepmind.google/blog/rss.xml", SiteURL: "https://deepmind.google/discover/blog/",
			Language: "en", Category: "AI/ML", Priority: PriorityHigh, Type: TypeOfficial, Active: true,
		},
		{
			ID: "huggingface-blog", Name: "Hugging Face Blog",
			FeedURL: "https://huggingface.co/blog/feed.xml", SiteURL: "https://huggingface.co/blog",
			Language: "en", Category: "Open Source", Priority: PriorityHigh, Type: TypeOfficial, Active: true,
		},
		{
			ID: "techcrunch-ai", Name: "TechCrunch AI",
			FeedURL: "https://techcrunch.com/category/artificial-intelligence/feed/", SiteURL: "https://techcrunch.com/category/artificial-intelligence/",
			Language: "en", Category: "AI/ML", Priority: PriorityMedium, Type: TypeMedia, Active: true,
		},
		{
			ID: "venturebeat-ai", Name: "VentureBeat AI",
			FeedURL: "https://venturebeat.com/category/ai/feed/", SiteURL: "https://venturebeat.com/category/ai/",
			Language: "en", Category: "AI/ML", Priority: PriorityMedium, Type: TypeMedia, Active: true,
		},
		{
			ID: "mit-tech-review-ai", Name: "MIT Technology Review AI",
			FeedURL: "https://www.technologyreview.com/topic/artificial-intelligence/feed", SiteURL: "https://www.technologyreview.com/topic/artificial-intelligence/",
			Language: "en", Category: "AI/ML", Priority: PriorityMedium, Type: TypeMedia, Active: true,
		},
		{
			ID: "the-verge-ai", Name: "The Verge AI",
			FeedURL: "https://www.theverge.com/rss/ai-artificial-intelligence/index.xml", SiteURL: "https://www.theverge.com/ai-artificial-intelligence",
			Language: "en", Category: "AI/ML", Priority: PriorityMedium, Type: TypeMedia, Active: true,
		},
		{
			ID: "jiqizhixin", Name: "机器之心",
			FeedURL: "https://www.jiqizhixin.com/rss", SiteURL: "https://www.jiqizhixin.com",
			Language: "zh", Category: "AI/ML", Priority: PriorityMedium, Type: TypeMedia, Active: true,
		},
		{
			ID: "berkeley-bair", Name: "Berkeley AI Research",
			FeedURL: "https://bair.berkeley.edu/blog/feed.xml", SiteURL: "https://bair.berkeley.edu/blog/",
			Language: "en", Category: "AI/ML", Priority: PriorityLow, Type: TypeAcademic, Active: true,
		},
		{
			ID: "arxiv-cs-ai", Name: "arXiv cs.AI",
			FeedURL: "https://rss.arxiv.org/rss/cs.AI", SiteURL: "https://arxiv.org/list/cs.AI/recent",
			Language: "en", Category: "AI/ML", Priority: PriorityLow, Type: TypeAcademic, Active: true,
		},
		{
			ID: "simon-willison", Name: "Simon Willison",
			FeedURL: "https://simonwillison.net/atom/everything/", SiteURL: "https://simonwillison.net",
			Language: "en", Category: "Engineering", Priority: PriorityLow, Type: TypeCommunity, Active: true,
		},
		{
			ID: "eli-bendersky", Name: "Eli Bendersky",
			FeedURL: "https://eli.thegreenplace.net/feeds/all.atom.xml", SiteURL: "https://eli.thegreenplace.net",
			Language: "en", Category: "Engineering", Priority: PriorityLow, Type: TypeCommunity, Active: true,
		},
		{
			ID: "krebs-security", Name: "Krebs on Security",
			FeedURL: "https://krebsonsecurity.com/feed/", SiteURL: "https://krebsonsecurity.com",
			Language: "en", Category: "Security", Priority: PriorityLow, Type: TypeCommunity, Active: true,
		},
	}
}
