package config

const DefaultAdminPermission = "limbogate.admin"

func DefaultConfig() *Config {
	return &Config{
		DataDir:     ".",
		CommandsDir: "scripts/commands",
		Admin: AdminConfig{
			Permission: DefaultAdminPermission,
		},
		Triggers: TriggersConfig{
			AFK: AFKTrigger{
				Enabled:          false,
				Session:          "afk",
				IdleTime:         300,
				CheckInterval:    30,
				ExemptPermission: "limbogate.afk.exempt",
				Message:          "&7You have been moved to AFK due to inactivity.",
			},
			Fallback: FallbackTrigger{
				Enabled: true,
				Session: "fallback",
				KickPatterns: []string{
					".*server.*closed.*",
					".*server.*restarting.*",
					".*timed out.*",
					".*kicked.*",
				},
				Message: "&cServer is unavailable. You've been moved to fallback limbo.",
			},
		},
		Bridge: BridgeConfig{
			Enabled:          true,
			RegisterAliases:  true,
			OverrideExisting: true,
			Host:             "127.0.0.1",
			StartPort:        1,
			Aliases:          map[string]string{"auth": "auth"},
		},
		Messages: DefaultMessages(),
		Sessions: map[string]SessionConfig{
			"afk":      DefaultSession(),
			"fallback": fallbackSession(),
			"auth":     authSession(),
		},
	}
}

func DefaultMessages() MessagesConfig {
	return MessagesConfig{
		CommandsDisabled:   "&cCommands are disabled in this limbo.",
		CommandUnavailable: "&cThis command is not available here.",
		CommandRequiresBackend: "&cThis command requires a backend server connection. " +
			"&7Auth plugins like JPremium may not work in limbo. Consider using LimboAuth instead.",
		CommandFailed: "&cCommand failed: ",
	}
}

func DefaultSession() SessionConfig {
	return SessionConfig{
		Enabled:   true,
		Dimension: "OVERWORLD",
		GameMode:  "ADVENTURE",
		WorldTime: 6000,
		Spawn: SpawnConfig{
			X: 0,
			Y: 100,
			Z: 0,
		},
		Settings: SettingsConfig{
			ReadTimeout:           30000,
			ShouldRejoin:          true,
			ShouldRespawn:         false,
			ReducedDebugInfo:      true,
			ViewDistance:          4,
			SimulationDistance:    4,
			Movement:              "anti-fall",
			DisableFallingDelayMs: 5000,
		},
		WorldFile: WorldFileConfig{
			Enabled:    false,
			Type:       "SCHEMATIC",
			Offset:     BlockPos{X: 0, Y: 64, Z: 0},
			LightLevel: 15,
		},
		Commands: []string{},
		AutoReconnect: AutoReconnectConfig{
			Enabled:        false,
			Server:         "lobby",
			Interval:       30,
			Message:        "&7Attempting to reconnect...",
			SuccessMessage: "&aReconnected successfully!",
		},
		Display: DisplayConfig{
			OnJoin: OnJoinConfig{
				Chat: "&7Welcome to limbo!",
				Title: TitleConfig{
					Enabled:  true,
					Title:    "&7Limbo",
					Subtitle: "&8Type /leave to exit",
					FadeIn:   10,
					Stay:     70,
					FadeOut:  20,
				},
				ActionBar: ActionBarConfig{
					Enabled: false,
				},
			},
			BossBar: BossBarConfig{
				Enabled:  true,
				Title:    "&7Limbo",
				Color:    "WHITE",
				Style:    "SOLID",
				Progress: 1.0,
			},
			ActionBar: ActionBarConfig{
				Enabled:  false,
				Message:  "&7Reconnecting in &f{countdown}s",
				Interval: 40,
			},
		},
	}
}

func fallbackSession() SessionConfig {
	s := DefaultSession()
	s.AutoReconnect.Enabled = true
	s.Display.OnJoin.Title.Subtitle = "&8Waiting for the server to come back"
	return s
}

func authSession() SessionConfig {
	s := DefaultSession()
	s.Commands = []string{"login", "register"}
	s.Display.OnJoin.Chat = "&7Please &f/login &7or &f/register&7."
	s.Display.OnJoin.Title.Subtitle = "&8Log in to continue"
	return s
}
