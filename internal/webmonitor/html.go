package webmonitor

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>QR Scanner Monitor</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: system-ui, sans-serif; background: #111; color: #eee; margin: 0; }
        .app { max-width: 960px; margin: 0 auto; padding: 16px; }
        .header { display: flex; justify-content: space-between; align-items: center; }
        .badge { padding: 4px 10px; border-radius: 12px; background: #333; font-size: 13px; }
        .badge.locked { background: #00f2ea; color: #000; }
        .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 16px; margin-top: 16px; }
        .panel { background: #1c1c1c; border-radius: 8px; padding: 12px; }
        .candidate { display: flex; justify-content: space-between; align-items: center;
                     padding: 8px; margin: 6px 0; background: #262626; border-radius: 6px; cursor: pointer; }
        .kind { font-size: 11px; padding: 2px 6px; border-radius: 4px; background: #00f2ea; color: #000; }
        .actions button { margin: 4px 4px 0 0; }
        .notice { color: #ffb347; min-height: 1.2em; }
        pre { white-space: pre-wrap; word-break: break-all; font-size: 12px; }
    </style>
</head>
<body>
    <div class="app">
        <div class="header">
            <h1>QR Scanner Monitor</h1>
            <span class="badge" id="state-badge">idle</span>
        </div>
        <p id="status-text">Scanning for QR code</p>
        <p class="notice" id="notice"></p>

        <div class="grid">
            <div class="panel">
                <h2>Candidates</h2>
                <div id="candidates"></div>
                <button type="button" id="btn-reset">Scan again</button>
            </div>
            <div class="panel">
                <h2>Selection</h2>
                <div id="selection"><p>Nothing selected.</p></div>
            </div>
            <div class="panel">
                <h2>History</h2>
                <div id="history"></div>
                <button type="button" id="btn-clear-history">Clear history</button>
            </div>
            <div class="panel">
                <h2>Status</h2>
                <pre id="status"></pre>
            </div>
        </div>
    </div>

    <script>
        const $ = (id) => document.getElementById(id);

        async function api(method, path, body) {
            const opts = { method, headers: {} };
            if (body !== undefined) {
                opts.headers['Content-Type'] = 'application/json';
                opts.body = JSON.stringify(body);
            }
            const res = await fetch(path, opts);
            const data = await res.json().catch(() => ({}));
            return { ok: res.ok, status: res.status, data };
        }

        function notice(text) { $('notice').textContent = text || ''; }

        function renderCandidates(set) {
            $('state-badge').textContent = set.state;
            $('state-badge').className = 'badge' + (set.state === 'locked' ? ' locked' : '');
            $('status-text').textContent = set.status;
            const list = $('candidates');
            list.innerHTML = '';
            for (const c of set.candidates || []) {
                const row = document.createElement('div');
                row.className = 'candidate';
                const label = document.createElement('span');
                label.textContent = c.data;
                const kind = document.createElement('span');
                kind.className = 'kind';
                kind.textContent = c.kind;
                row.append(label, kind);
                row.addEventListener('click', () => select(c.data));
                list.append(row);
            }
            if (set.state === 'locked') refreshSelection();
        }

        async function runCommand(cmd) {
            switch (cmd.op) {
            case 'open_url': window.open(cmd.url, '_blank'); break;
            case 'set_clipboard': await navigator.clipboard.writeText(cmd.text); break;
            case 'share':
                if (navigator.share) await navigator.share({ text: cmd.share.message, url: cmd.share.url });
                break;
            case 'add_contact': console.log('[Monitor] add contact', cmd.contact); break;
            }
        }

        async function runAction(action) {
            const { ok, data } = await api('POST', '/api/actions/run', { action });
            if (!ok) { notice(data.error); return; }
            for (const cmd of data.commands) await runCommand(cmd).catch((e) => notice(String(e)));
            notice(data.notice);
        }

        function renderSelection(sel) {
            const box = $('selection');
            box.innerHTML = '';
            const p = sel.parsed;
            const title = document.createElement('h3');
            title.textContent = p.title + ' (' + p.kind + ')';
            const sub = document.createElement('p');
            sub.textContent = p.subtitle;
            box.append(title, sub);
            if (sel.error) {
                const err = document.createElement('p');
                err.className = 'notice';
                err.textContent = sel.error;
                box.append(err);
            }
            const actions = document.createElement('div');
            actions.className = 'actions';
            for (const a of [p.primaryAction, ...(p.secondaryActions || [])]) {
                if (!a) continue;
                const b = document.createElement('button');
                b.textContent = a.label;
                b.addEventListener('click', () => runAction(a));
                actions.append(b);
            }
            box.append(actions);
            if (sel.autoCopy) runAction(sel.autoCopy);
        }

        async function refreshSelection() {
            const { data } = await api('GET', '/api/status');
            if (data.selection) renderSelection(data.selection);
            loadHistory();
        }

        async function select(payload) {
            const { ok, data } = await api('POST', '/api/select', { payload });
            if (!ok) { notice(data.error); return; }
            renderSelection(data);
        }

        async function loadHistory() {
            const { data } = await api('GET', '/api/history');
            const list = $('history');
            list.innerHTML = '';
            for (const item of data || []) {
                const row = document.createElement('div');
                row.className = 'candidate';
                row.textContent = new Date(item.timestamp).toLocaleString() + '  ' + item.data;
                list.append(row);
            }
        }

        $('btn-reset').addEventListener('click', async () => {
            await api('POST', '/api/reset');
            $('selection').innerHTML = '<p>Nothing selected.</p>';
            notice('');
        });
        $('btn-clear-history').addEventListener('click', async () => {
            await api('DELETE', '/api/history');
            loadHistory();
        });

        window.addEventListener('load', () => {
            const frames = new EventSource('/api/candidates/stream');
            frames.onmessage = (e) => renderCandidates(JSON.parse(e.data));
            const status = new EventSource('/api/status/stream');
            status.onmessage = (e) => { $('status').textContent = JSON.stringify(JSON.parse(e.data).monitor, null, 2); };
            loadHistory();
        });
    </script>
</body>
</html>
`
