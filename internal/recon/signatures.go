// Package recon classifies the defenses and technology stack of a URL
// from response headers and rendered HTML, using fixed signature tables.
package recon

// Marker tables are matched as case-insensitive substrings. Header
// markers run against a "key:value" blob of lowercased headers, HTML
// markers against the lowercased page sample. The tables are fixed at
// build time; vendors are keyed by the name strategies dispatch on.

var wafHeaderMarkers = map[string][]string{
	"perimeterx":       {"x-px", "x-perimeterx", "x-px-debug"},
	"cloudflare":       {"cf-ray", "cf-cache-status", "cf-apo-via"},
	"imperva":          {"x-iinfo", "x-cdn", "x-cdn-geo", "incap-"},
	"akamai":           {"akamai", "akamai-ghost", "akamai-grn"},
	"sucuri":           {"x-sucuri-id", "x-sucuri-cache"},
	"fastly":           {"x-fastly-request-id", "fastly-debug"},
	"cloudfront":       {"x-amz-cf-id", "x-amz-cf-pop"},
	"aws-waf":          {"x-amzn-waf-action"},
	"azure-front-door": {"x-azure-ref", "x-fd-int-roxy-purgeid", "x-fd-traffic"},
	"f5":               {"x-wa-info", "x-cnection", "x-asm", "x-waf-event-info"},
	"barracuda":        {"barra", "x-barracuda", "bnc"},
	"datadome":         {"x-datadome"},
	"distil":           {"x-distil-cs", "x-distil-debug"},
	"radware":          {"x-sl-compstate", "x-sl-edge", "x-sl-referrer"},
	"reblaze":          {"x-reblaze", "rbzid"},
	"stackpath":        {"x-sucuri-id", "x-sucuri-cache", "x-stackpath"},
	"stackpath-waf":    {"x-stackpath", "spmsg", "sprequestguid"},
	"siteground":       {"x-proxy-cache", "x-hw", "sg-"},
	"varnish-waf":      {"x-varnish", "x-cache"},
}

var wafHTMLMarkers = map[string][]string{
	"perimeterx": {
		"captcha.perimeterx.net",
		"perimeterx",
		"px-captcha",
		"px-block",
		"pxblock",
		"px-cdn",
	},
	"cloudflare": {"cf-browser-verification", "cloudflare", "/cdn-cgi/"},
	"imperva":    {"incapsula", "imperva", "x2cap", "incap_ses"},
	"datadome":   {"datadome", "geo.captcha-delivery.com"},
	"distil":     {"distil networks", "distil_r_captcha", "distilr", "distilcaptcha"},
	"kasada":     {"kasada", "kpsdk"},
	"radware":    {"rbz", "radware", "appwall"},
	"reblaze":    {"reblaze", "rbz"},
	"sucuri":     {"sucuri firewall", "sucuri cloudproxy"},
	"f5":         {"asm", "big-ip", "f5", "x-waf-event-info"},
	"modsecurity": {
		"mod_security",
		"modsecurity",
		"modsecurity rules",
	},
}

var techHeaderMarkers = map[string][]string{
	"wordpress":   {"x-powered-by:wordpress", "x-generator:wordpress"},
	"shopify":     {"x-shopify-", "x-sorting-hat-podid", "x-sorting-hat-shopid"},
	"magento":     {"x-magento-", "x-ua-compatible:magento"},
	"drupal":      {"x-generator:drupal", "x-drupal-cache"},
	"joomla":      {"x-generator:joomla"},
	"wix":         {"x-wix-request-id"},
	"squarespace": {"x-sqsp-cache", "x-squarespace-cache"},
	"webflow":     {"x-wf-request-id"},
	"ghost":       {"x-ghost-cache"},
	"nextjs":      {"x-powered-by:next.js"},
	"nuxt":        {"x-powered-by:nuxt"},
	"express":     {"x-powered-by:express"},
	"django":      {"csrftoken", "x-frame-options:sameorigin"},
	"laravel":     {"laravel_session"},
	"rails":       {"x-runtime", "x-rails", "_rails"},
}

var techHTMLMarkers = map[string][]string{
	"wordpress": {
		"wp-content/",
		"wp-includes/",
		"wp-json",
		"xmlrpc.php",
		`content="wordpress`,
	},
	"shopify": {
		"cdn.shopify.com",
		"x-shopify-stage",
		"shopify-section",
		"shopify-buy-button",
	},
	"magento": {
		"mage/",
		"magento",
		"catalog/product/view",
		"data-mage-init",
	},
	"drupal":      {"drupal-settings-json", "drupal", "data-drupal"},
	"joomla":      {"joomla", "com_content", `content="joomla`},
	"wix":         {"wix.com", "wixsite", "wix-code-sdk"},
	"squarespace": {"static.squarespace.com", "squarespace"},
	"webflow":     {"webflow.com", "data-wf-page", "data-wf-site"},
	"ghost":       {"ghost.io", `content="ghost`},
	"nextjs":      {"_next/static", "nextjs", "__next_data__"},
	"nuxt":        {"_nuxt/", "__nuxt", "nuxt"},
	"react":       {"data-reactroot", "data-reactid"},
	"vue":         {"data-v-", `id="app"`},
	"angular":     {"ng-version", "ng-app", "ng-controller"},
	"svelte":      {"svelte", "__svelte", "data-svelte"},
	"django":      {"csrftoken", "django", "data-csrf"},
	"laravel":     {"laravel", "csrf-token"},
	"rails":       {"rails", "csrf-param", "csrf-token"},
	"aspnet":      {"__viewstate", "asp.net", "x-aspnet-version"},
}

var captchaHTMLMarkers = map[string][]string{
	"recaptcha": {
		"www.google.com/recaptcha/api.js",
		"www.recaptcha.net/recaptcha/api.js",
		"g-recaptcha",
		"grecaptcha",
		"data-sitekey",
	},
	"hcaptcha": {
		"js.hcaptcha.com/1/api.js",
		"h-captcha",
		"hcaptcha",
		"data-sitekey",
	},
	"turnstile": {
		"challenges.cloudflare.com/turnstile/v0/api.js",
		"cf-turnstile",
		"turnstile.render",
	},
	"arkose": {
		"client-api.arkoselabs.com",
		"arkoselabs",
		"funcaptcha",
		"fc-token",
		"data-pkey",
	},
	"geetest": {
		"static.geetest.com",
		"geetest",
		"gt4.js",
		"gt_captcha",
	},
	"friendlycaptcha": {
		"friendlycaptcha",
		"friendly-challenge",
		"cdn.jsdelivr.net/npm/friendly-challenge",
	},
	"keycaptcha":   {"keycaptcha", "keycaptcha.com"},
	"honeycaptcha": {"honeycaptcha"},
	"textcaptcha":  {"textcaptcha"},
}
