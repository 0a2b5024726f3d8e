// Package config provides configuration loading, merging, and path management
// for chatrelay.
//
// # Configuration Loading
//
// Load starts from the built-in defaults and merges, in priority order:
//
//  1. Global config (~/.config/chatrelay/chatrelay.json[c], XDG_CONFIG_HOME aware)
//  2. Project config (chatrelay.json[c] in the given directory)
//  3. CHATRELAY_CONFIG file
//  4. Environment variables
//
// Files may be JSON or JSONC; comments are stripped with tidwall/jsonc.
//
// # Variable Interpolation
//
//   - {env:VAR_NAME} expands to the environment variable value
//   - {file:path} expands to the file contents, escaped for a JSON string
//
// Relative {file:} paths resolve against the config file's directory.
//
//	{
//	  "provider": {
//	    "openai": { "apiKey": "{env:OPENAI_API_KEY}" }
//	  },
//	  "search": { "provider": "openai", "historyWindow": 10 }
//	}
//
// # Environment Variable Overrides
//
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, ARK_API_KEY fill missing provider keys
//   - OPENAI_BASE_URL fills a missing OpenAI base URL
//   - HOST, PORT set the listen address
//   - CHATRELAY_LOG_LEVEL sets the log level
//   - CHATRELAY_DATA_DIR relocates the sessions and exports directories
package config
