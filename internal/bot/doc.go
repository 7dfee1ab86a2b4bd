// Package bot — «склейка» вокруг ohclient и mediahook, реализующая
// прикладного бота для Openhouse. Бот:
//   - слушает чат комнаты и обрабатывает команды (!help, !join, !mute,
//     !speaker, !track и др.);
//   - приветствует входящих и сообщает о входах/выходах отслеживаемых
//     пользователей;
//   - после каждого (ре)подключения сам возвращается в свою комнату;
//   - реагирует на поднятую руку (звук через внешнюю программу ОС);
//   - на Windows управляется глобальными медиа-клавишами (mute/deafen).
//
// Жизненный цикл:
//   - Создать бота через New().
//   - SetClient(...), (опционально) SetMediaHook().
//   - (Опционально) UseConfig("config/bot.json") — комната, админы,
//     приветствие, отслеживаемые; файл перечитывается при правках.
//   - Запустить Start() и остановить Stop().
//
// Пример:
//
//	b := bot.New()
//	b.SetClient(ohclient.Config{APIKey: key, AutoReconnect: true})
//	_ = b.UseConfig("config/bot.json")
//
//	if err := b.Start(); err != nil { log.Fatal(err) }
//	defer b.Stop()
//	select {} // держим процесс
//
// Команды в чате изменяют рантайм-состояние и сразу сохраняют конфиг
// (команда !save доступна явно).
package bot
