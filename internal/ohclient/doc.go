// Package ohclient реализует WebSocket-клиент Openhouse: постоянное
// соединение c wss://api.openhouse.chat/socket, аутентификация по паре
// access/refresh-токенов, heartbeat текстовыми "ping"/"pong", автоматический
// реконнект с джиттером и локальное зеркало серверного состояния (комнаты,
// участники, голосовые флаги), собираемое из входящих дельт.
//
// Высокоуровневые методы:
//   - CreateRoom, JoinRoom, LeaveRoom, UpdateRoom — room-операции (новый
//     envelope op/p/version/ref, ответ дожидается по ref);
//   - SetMuted, SetDeafened, AskToSpeak, AddSpeaker, RemoveSpeaker, SetMod,
//     ChangeRoomCreator, SendChatMessage, Say, DeleteChatMessage — legacy
//     envelope (op/d/fetchId);
//   - TopRooms, UserInfo — legacy-запросы с ответом по fetchId.
//
// События (колбэки поля структуры):
//   - OnConnecting, OnConnected, OnReady, OnDisconnected, OnError,
//     OnJoinedRoom, OnUserJoinRoom, OnUserLeftRoom, OnSpeakingChange,
//     OnMuteChange, OnDeafenChange, OnChatMessage, OnCustomEvent и другие.
//
// Безопасность и устойчивость:
//   - Запись в сокет сериализована (мьютекс + write-deadline) и проходит
//     через rate-limiter.
//   - Ответы коррелируются по ref/fetchId; на один идентификатор — один
//     таймер, колбэк срабатывает не более одного раза (успех, ошибка
//     сервера или таймаут).
//   - При обрыве — реконнект с мультипликативным джиттером; отказ
//     аутентификации реконнект не запускает.
//
// Пример:
//
//	c := ohclient.New(ohclient.Config{APIKey: key, AutoReconnect: true})
//	c.OnReady = func(u ohclient.User) { fmt.Println("ready as", u.Username) }
//	c.OnChatMessage = func(m ohclient.ChatMessage) { fmt.Println(m.Text()) }
//	ctx := context.Background()
//	if err := c.Connect(ctx); err != nil { log.Fatal(err) }
//	defer c.Disconnect()
//
//	room, _ := c.JoinRoom("room-id")
//	_ = c.Say("hello " + room.Name)
package ohclient
